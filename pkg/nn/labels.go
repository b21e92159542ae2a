package nn

// ObjectDetection is an object that a neural network has found in an image,
// or a ground truth object (in which case Confidence is 1).
type ObjectDetection struct {
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        Box     `json:"box"`
}

const (
	KittiBackground = 0
	KittiCar        = 1
	KittiPedestrian = 2
	KittiCyclist    = 3
)

// KittiClasses is the class table of the KITTI MOT benchmark.
// The class ID of an object is its index in this list.
var KittiClasses = []string{
	"__background__",
	"Car",
	"Pedestrian",
	"Cyclist",
}

// ClassToIndex maps class names to their position in 'classes'
func ClassToIndex(classes []string) map[string]int {
	m := make(map[string]int, len(classes))
	for i, c := range classes {
		m[c] = i
	}
	return m
}
