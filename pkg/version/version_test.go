package version

import "testing"

func TestGetFullVersion(t *testing.T) {
	if got, want := GetFullVersion(), GetVersion()+" (build: "+GetBuildID()+")"; got != want {
		t.Fatalf("GetFullVersion() = %q, want %q", got, want)
	}
}
