package prompt

import (
	"strings"
	"testing"
)

func TestSucceed(t *testing.T) {
	texts := Texts{FeedbackURLBase: "https://colib.app/curation/"}
	got := texts.Succeed("60177-1")
	want := "🎉 Share is successfully processed. See: https://colib.app/curation/60177-1\n✉️ Attention: all replies to this share will be recorded on chain"
	if got != want {
		t.Fatalf("Succeed = %q, want %q", got, want)
	}
	if !strings.HasSuffix(texts.AlreadyProcessed("1-2"), "https://colib.app/curation/1-2") {
		t.Errorf("AlreadyProcessed = %q", texts.AlreadyProcessed("1-2"))
	}
}

func TestHelpModes(t *testing.T) {
	dm := Help("nuntibot", HelpDM)
	if !strings.HasPrefix(dm, "Hi! I'm nunti. I have to be used in a group.") {
		t.Errorf("dm help = %q", dm)
	}
	if !strings.Contains(dm, "@nuntibot #Romantic") {
		t.Errorf("dm help lacks bot mention example")
	}
	if strings.Contains(Help("nuntibot", HelpGroup), "/setcontext") {
		t.Errorf("group help exposes admin commands")
	}
	if !strings.Contains(Help("nuntibot", HelpAdmin), "/setcontext") {
		t.Errorf("admin help lacks admin commands")
	}
}
