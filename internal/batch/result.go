package batch

// Failure is one record whose update did not succeed.
type Failure struct {
	OldEmail string
	NewEmail string
	Reason   string
}

// Result accumulates record outcomes. Total always equals Succeeded + Failed
// and len(Failures) always equals Failed.
type Result struct {
	Total     int
	Succeeded int
	Failed    int
	Failures  []Failure

	// Dropped counts CSV rows that never became records. They are not failures.
	Dropped int
}

func (r *Result) succeed() {
	r.Total++
	r.Succeeded++
}

func (r *Result) fail(f Failure) {
	r.Total++
	r.Failed++
	r.Failures = append(r.Failures, f)
}

// Clean reports whether every attempted record succeeded.
func (r *Result) Clean() bool {
	return r.Failed == 0
}

// ExitCode maps a run outcome to the process exit status: 0 when every record
// succeeded or there was nothing to do, 1 on any failed record or a run-fatal
// error.
func ExitCode(res *Result, err error) int {
	if err != nil || res == nil {
		return 1
	}
	if !res.Clean() {
		return 1
	}
	return 0
}
