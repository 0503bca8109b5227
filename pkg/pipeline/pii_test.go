// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/kadirpekel/codegate/pkg/pii"
	"github.com/kadirpekel/codegate/pkg/protocol"
)

func TestPIIRedactStep(t *testing.T) {
	step := NewPIIRedactStep(pii.NewAnalyzer())
	pctx := newTestContext()
	req := chatRequest(userMessage("Mail bob@example.com or call +14155550101 or +442071838750."))

	if _, err := step.Process(context.Background(), req, pctx); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	text := protocol.MessageText(&req.Messages[0])
	for _, leaked := range []string{"bob@example.com", "+14155550101", "+442071838750"} {
		if strings.Contains(text, leaked) {
			t.Errorf("cleartext %q survived redaction", leaked)
		}
	}
	if got := len(piiMarker.re.FindAllString(text, -1)); got != 3 {
		t.Fatalf("placeholder count = %d, want 3 (text %q)", got, text)
	}

	if !pctx.PIIFound {
		t.Error("PIIFound not set")
	}
	if pctx.PIICounts[pii.EmailAddress] != 1 || pctx.PIICounts[pii.PhoneNumber] != 2 {
		t.Errorf("PIICounts = %v, want 1 email / 2 phone", pctx.PIICounts)
	}
	if len(pctx.Alerts) != 3 {
		t.Errorf("len(Alerts) = %d, want 3", len(pctx.Alerts))
	}
}

func TestPIIUnredactRoundTrip(t *testing.T) {
	redactStep := NewPIIRedactStep(pii.NewAnalyzer())
	pctx := newTestContext()
	req := chatRequest(userMessage("Contact carol@example.org please"))
	if _, err := redactStep.Process(context.Background(), req, pctx); err != nil {
		t.Fatalf("redact error = %v", err)
	}
	placeholder := piiMarker.re.FindString(protocol.MessageText(&req.Messages[0]))
	if placeholder == "" {
		t.Fatal("no placeholder issued")
	}

	echo := "Write to " + placeholder + " today"
	engine := NewOutputEngine(nil, NewPIIUnredactStep())
	out := engine.Process(context.Background(), feed(
		textChunk(echo[:12]),
		textChunk(echo[12:25]),
		finishChunk(echo[25:]),
	), pctx)

	_, text := drain(t, out)
	if want := "Write to carol@example.org today"; text != want {
		t.Errorf("restored stream = %q, want %q", text, want)
	}
}

func TestPIINotifierStep(t *testing.T) {
	pctx := newTestContext()
	pctx.PIICounts[pii.EmailAddress] = 1
	pctx.PIICounts[pii.PhoneNumber] = 2
	step := NewPIINotifierStep("http://localhost:9090")

	chunks, err := step.Process(context.Background(), textChunk("Sure,"), pctx)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want notice + original", len(chunks))
	}
	want := "🛡️ [CodeGate protected 3 instances of PII, including 1 email address, 2 phone numbers](http://localhost:9090/?view=codegate-pii) from being leaked by redacting them.\n\n"
	if got := chunkText(chunks[0]); got != want {
		t.Errorf("notice = %q, want %q", got, want)
	}

	chunks, _ = step.Process(context.Background(), textChunk("next"), pctx)
	if len(chunks) != 1 {
		t.Error("notice fired twice")
	}
}

func TestPIINoticeOrderingAndSingular(t *testing.T) {
	counts := map[pii.Entity]int{pii.IPAddress: 1}
	got := piiNotice(counts, "http://localhost:9090")
	want := "🛡️ [CodeGate protected 1 instance of PII, including 1 IP address](http://localhost:9090/?view=codegate-pii) from being leaked by redacting them.\n\n"
	if got != want {
		t.Errorf("piiNotice = %q, want %q", got, want)
	}

	// Entity order in the notice is fixed regardless of map iteration.
	counts = map[pii.Entity]int{pii.USSSN: 1, pii.EmailAddress: 2}
	got = piiNotice(counts, "http://localhost:9090")
	if !strings.Contains(got, "2 email addresses, 1 social security number") {
		t.Errorf("notice detail order wrong: %q", got)
	}
}
