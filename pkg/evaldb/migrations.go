package evaldb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE eval_run(
			id INTEGER PRIMARY KEY,
			started_at INT NOT NULL,
			image_set TEXT NOT NULL,
			result_file TEXT NOT NULL,
			num_detections INT NOT NULL,
			overlap_threshold REAL NOT NULL,
			mean_ap REAL NOT NULL
		);
		CREATE INDEX idx_eval_run_image_set ON eval_run (image_set, started_at);

		CREATE TABLE eval_class_ap(
			id INTEGER PRIMARY KEY,
			run_id INT NOT NULL,
			class TEXT NOT NULL,
			ap REAL NOT NULL
		);
		CREATE INDEX idx_eval_class_ap_run_id ON eval_class_ap (run_id);
	`))

	return migs
}
