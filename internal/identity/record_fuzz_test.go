package identity

import (
	"testing"
	"time"
)

// FuzzParsePIDRecord ensures arbitrary pid file contents never panic and
// never yield a non-positive pid.
func FuzzParsePIDRecord(f *testing.F) {
	f.Add([]byte("1234\n"))
	f.Add([]byte("1234\n{\"launch_id\":\"a\",\"start_unix\":1693290000}\n"))
	f.Add([]byte(""))
	f.Add([]byte("abc\n"))
	f.Add([]byte("-7\n"))
	f.Add([]byte("99999999999999999999\n"))
	f.Add([]byte("42\r\n{\"launch_id\":"))

	mtime := time.Unix(1693290000, 0).UTC()
	f.Fuzz(func(t *testing.T, data []byte) {
		rec, err := parsePIDRecord(data, mtime)
		if err != nil {
			if rec != nil {
				t.Fatalf("record returned alongside error: %+v", rec)
			}
			return
		}
		if rec.PID <= 0 {
			t.Fatalf("parsed non-positive pid %d from %q", rec.PID, data)
		}
		if !rec.RecordedAt.Equal(mtime) {
			t.Fatalf("RecordedAt not taken from mtime")
		}
	})
}

// FuzzPIDRecordRoundTrip checks encode/parse stability for valid records.
func FuzzPIDRecordRoundTrip(f *testing.F) {
	f.Add(1, "launch", int64(0))
	f.Add(32768, "0d8c2f9e", int64(1693290000))
	f.Fuzz(func(t *testing.T, pid int, launchID string, startUnix int64) {
		if pid <= 0 {
			t.Skip()
		}
		in := &ProcessRecord{PID: pid, LaunchID: launchID, StartUnix: startUnix}
		out, err := parsePIDRecord(encodePIDRecord(in), time.Now())
		if err != nil {
			t.Fatalf("round trip parse: %v", err)
		}
		if out.PID != pid || out.StartUnix != startUnix {
			t.Fatalf("round trip mismatch: in=%+v out=%+v", in, out)
		}
	})
}
