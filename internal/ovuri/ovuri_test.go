package ovuri

import "testing"

func TestUriToPath(t *testing.T) {
	cases := []struct {
		uri, account, want string
	}{
		{"viking://resources/a.txt", "acme", "/local/acme/resources/a.txt"},
		{"viking://", "acme", "/local/acme"},
		{"viking://resources/a.txt", "", "/local/resources/a.txt"},
		{"viking://", "", "/local"},
		{"viking://user/xyz/memories", "acme", "/local/acme/user/xyz/memories"},
	}
	for _, c := range cases {
		if got := UriToPath(c.uri, c.account); got != c.want {
			t.Errorf("UriToPath(%q, %q) = %q, want %q", c.uri, c.account, got, c.want)
		}
	}
}

func TestRoundTripWithAccount(t *testing.T) {
	uris := []string{
		"viking://",
		"viking://resources/a.txt",
		"viking://user/xyz/memories/note.md",
		"viking://agent/qrs/skills",
		"viking://session/abc/s1/transcript.jsonl",
	}
	for _, uri := range uris {
		for _, account := range []string{"acme", ""} {
			path := UriToPath(uri, account)
			got := PathToUri(path, account)
			if got != uri {
				t.Errorf("round trip failed: uri=%q account=%q path=%q got=%q", uri, account, path, got)
			}
		}
	}
}

func TestRoundTripFromPath(t *testing.T) {
	paths := []string{"/local", "/local/foo/bar", "/local/resources/a.txt"}
	for _, p := range paths {
		uri := PathToUri(p, "")
		got := UriToPath(uri, "")
		if got != p {
			t.Errorf("round trip from path failed: path=%q uri=%q got=%q", p, uri, got)
		}
	}
}

func TestPathToUriPassThrough(t *testing.T) {
	already := "viking://resources/a.txt"
	if got := PathToUri(already, "acme"); got != already {
		t.Errorf("PathToUri should pass through an already-URI value, got %q", got)
	}
}

func TestExtractSpaceFromUri(t *testing.T) {
	cases := []struct {
		uri       string
		wantSpace string
		wantOK    bool
	}{
		{"viking://user/xyz/memories", "xyz", true},
		{"viking://agent/qrs", "qrs", true},
		{"viking://session/abc/s1", "abc", true},
		{"viking://resources/a.txt", "", false},
		{"viking://", "", false},
		{"viking://user", "", false},
	}
	for _, c := range cases {
		space, ok := ExtractSpaceFromUri(c.uri)
		if space != c.wantSpace || ok != c.wantOK {
			t.Errorf("ExtractSpaceFromUri(%q) = (%q, %v), want (%q, %v)", c.uri, space, ok, c.wantSpace, c.wantOK)
		}
	}
}

func TestIsRoot(t *testing.T) {
	if !IsRoot("viking://") {
		t.Error("viking:// should be root")
	}
	if IsRoot("viking://resources") {
		t.Error("viking://resources should not be root")
	}
}

func TestTopSegment(t *testing.T) {
	if got := TopSegment("viking://resources/a.txt"); got != "resources" {
		t.Errorf("TopSegment = %q, want resources", got)
	}
	if got := TopSegment("viking://"); got != "" {
		t.Errorf("TopSegment of root = %q, want empty", got)
	}
}
