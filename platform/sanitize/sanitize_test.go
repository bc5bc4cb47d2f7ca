package sanitize

import "testing"

func TestText(t *testing.T) {
	cases := map[string]string{
		"  VP   approved ":               "VP approved",
		"<b>budget</b> confirmed":        "budget confirmed",
		"&lt;script&gt;x&lt;/script&gt;": "x",
		"café":                     "café",
	}
	for in, want := range cases {
		if got := Text(in); got != want {
			t.Fatalf("Text(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsBlank(t *testing.T) {
	if !IsBlank("   \t ") {
		t.Fatalf("whitespace must be blank")
	}
	if !IsBlank("<p></p>") {
		t.Fatalf("empty markup must be blank")
	}
	if IsBlank("ok") {
		t.Fatalf("text must not be blank")
	}
}
