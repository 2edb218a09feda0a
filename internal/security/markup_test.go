package security

import "testing"

func TestTagsBalanced(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"プレーンテキスト", "Trust the path ahead", true},
		{"空文字", "", true},
		{"閉じたタグ", "<b>The Star</b> shines", true},
		{"入れ子のタグ", "<b>bold <i>and italic</i></b>", true},
		{"エスケープ済みの記号", "5 &lt; 6 &amp; calm", true},
		{"閉じていないタグ", "<b>Trust the path ahead", false},
		{"対応しない終了タグ", "Your card says <i>wait</b> a little", false},
		{"交差したタグ", "<b>one <i>two</b> three</i>", false},
		{"開始タグの無い終了タグ", "done</b>", false},
		{"自己終了タグ", "line<b/>break", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TagsBalanced(tt.input); got != tt.want {
				t.Errorf("TagsBalanced(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// サニタイズ後も閉じていないタグはそのまま残るため、送信前の検査が必要になる
func TestSanitizeRich_DoesNotBalanceTags(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	got := sanitizer.SanitizeRich("<b>Trust the path ahead")
	if TagsBalanced(got) {
		t.Errorf("SanitizeRich output %q unexpectedly balanced", got)
	}
}
