// Package pose provides the landmark detectors used by the analyzer.
//
// Three providers are available:
//
//   - sidecar: a long-running helper process (usually a MediaPipe script) that
//     speaks length-prefixed msgpack over stdin/stdout.
//   - onnx: an in-process BlazePose landmark model run through onnxruntime.
//   - replay: landmarks read back from a frame log written by an earlier run.
//
// Sidecar protocol. Every message is a 4-byte big-endian length followed by a
// msgpack map. The request carries the frame as packed RGB24 rows:
//
//	{"frame": 12, "width": 640, "height": 480, "pixels": <bytes>,
//	 "min_detection_confidence": 0.5, "min_tracking_confidence": 0.5}
//
// The response is
//
//	{"frame": 12, "landmarks": [{"x":..,"y":..,"z":..,"visibility":..}, ...], "error": ""}
//
// An empty landmark list means no pose. A non-empty error string is a soft
// failure for that frame only; the frame is treated as having no pose. Broken
// framing or a dead process is a hard failure.
package pose
