package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIIResidentNumber(t *testing.T) {
	out, changed := RedactPII("주민번호는 900101-1234567 입니다")
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	if !strings.Contains(out, "[REDACTED_RRN]") {
		t.Fatalf("output missing RRN marker: %q", out)
	}
	if strings.Contains(out, "[REDACTED_PHONE]") || strings.Contains(out, "[REDACTED_CARD]") {
		t.Fatalf("RRN misclassified: %q", out)
	}
}

func TestRedactPIILeavesConversationAlone(t *testing.T) {
	input := "내 이름은 성민이야, 강남점으로 예약해줘"
	out, changed := RedactPII(input)
	if changed {
		t.Fatalf("changed = true for clean input: %q", out)
	}
	if out != input {
		t.Fatalf("output mutated: %q", out)
	}
}
