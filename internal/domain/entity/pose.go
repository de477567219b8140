package entity

// Point2D is a normalized image coordinate, x and y in [0,1].
type Point2D struct {
	X float64
	Y float64
}

// Landmark is one body keypoint as reported by a pose provider. Visibility is
// in [0,1] when the provider reports it, zero otherwise.
type Landmark struct {
	X          float64 `json:"x" cbor:"x" msgpack:"x"`
	Y          float64 `json:"y" cbor:"y" msgpack:"y"`
	Z          float64 `json:"z" cbor:"z" msgpack:"z"`
	Visibility float64 `json:"visibility" cbor:"v" msgpack:"visibility"`
}

func (l Landmark) Point() Point2D {
	return Point2D{X: l.X, Y: l.Y}
}

// BodyPart indexes a LandmarkSet. The order is the 33-point BlazePose topology.
type BodyPart int

const (
	Nose BodyPart = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex
)

// LandmarkCount is the fixed size of every LandmarkSet.
const LandmarkCount = 33

// LandmarkSet is the complete set of landmarks detected on one frame. A frame
// either has a full set or none at all.
type LandmarkSet [LandmarkCount]Landmark

func (s *LandmarkSet) At(part BodyPart) Point2D {
	return s[part].Point()
}

// Connection is a skeletal segment drawn between two landmarks.
type Connection struct {
	From BodyPart
	To   BodyPart
}

// PoseConnections lists every skeletal segment of the BlazePose topology.
var PoseConnections = []Connection{
	{Nose, LeftEyeInner}, {LeftEyeInner, LeftEye}, {LeftEye, LeftEyeOuter}, {LeftEyeOuter, LeftEar},
	{Nose, RightEyeInner}, {RightEyeInner, RightEye}, {RightEye, RightEyeOuter}, {RightEyeOuter, RightEar},
	{MouthLeft, MouthRight},
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow}, {LeftElbow, LeftWrist},
	{LeftWrist, LeftPinky}, {LeftWrist, LeftIndex}, {LeftWrist, LeftThumb}, {LeftPinky, LeftIndex},
	{RightShoulder, RightElbow}, {RightElbow, RightWrist},
	{RightWrist, RightPinky}, {RightWrist, RightIndex}, {RightWrist, RightThumb}, {RightPinky, RightIndex},
	{LeftShoulder, LeftHip}, {RightShoulder, RightHip}, {LeftHip, RightHip},
	{LeftHip, LeftKnee}, {RightHip, RightKnee},
	{LeftKnee, LeftAnkle}, {RightKnee, RightAnkle},
	{LeftAnkle, LeftHeel}, {RightAnkle, RightHeel},
	{LeftHeel, LeftFootIndex}, {RightHeel, RightFootIndex},
	{LeftAnkle, LeftFootIndex}, {RightAnkle, RightFootIndex},
}
