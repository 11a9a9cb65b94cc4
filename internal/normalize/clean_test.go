package normalize

import "testing"

func TestCleanText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"tags", "<div>HTML <b>bold</b></div>", "HTML bold"},
		{"url", "see https://www.clien.net/board?id=1 now", "see now"},
		{"emoji", "laptop 💻 deal", "laptop deal"},
		{"whitespace", "  a\n\n\tb  ", "a b"},
		{"entities", "Tom &amp; Jerry's", "Tom & Jerry's"},
		{
			"mixed",
			"[clien] sample: 'go' <div>HTML 태그 테스트</div> https://www.clien.net 💻",
			"[clien] sample: 'go' HTML 태그 테스트",
		},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CleanText(tt.in); got != tt.want {
				t.Fatalf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanAllDropsEmpty(t *testing.T) {
	t.Parallel()

	got := CleanAll([]string{"<p></p>", "keep me", "💻"})
	if len(got) != 1 || got[0] != "keep me" {
		t.Fatalf("unexpected result %v", got)
	}
}
