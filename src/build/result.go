package build

import (
	"time"

	"github.com/sofmeright/imagekiln/src/verify"
)

// Result captures the outcome of a single image build.
type Result struct {
	ImageRef      string        // tag of the produced image, empty when the build failed
	Duration      time.Duration
	SizeBytes     int64  // daemon-reported image size, 0 when unknown
	Timeout       bool   // the build exceeded its wall-clock limit
	ContextDigest string // fingerprint of the build context inputs
	LogExcerpt    string // bounded tail of backend output
	Error         error
}

// Outcome pairs a task's build result with its verification report.
// Verification is nil when the build failed or the stage was skipped.
type Outcome struct {
	Result       Result
	Verification *verify.Report
}
