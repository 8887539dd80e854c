package http

import (
	"errors"
	"strings"
	"testing"
)

// collect feeds chunks one by one and flattens the events, copying data so
// it survives the next Feed.
func collect(t *testing.T, p *Parser, chunks ...string) ([]Event, error) {
	t.Helper()
	var all []Event
	for _, c := range chunks {
		events, err := p.Feed([]byte(c))
		for _, ev := range events {
			ev.Data = append([]byte(nil), ev.Data...)
			all = append(all, ev)
		}
		if err != nil {
			return all, err
		}
	}
	return all, nil
}

// summarize merges consecutive URL fragments so differently split streams
// can be compared.
func summarize(events []Event) []string {
	var out []string
	for _, ev := range events {
		switch ev.Type {
		case EventURL:
			if n := len(out); n > 0 && strings.HasPrefix(out[n-1], "url:") {
				out[n-1] += string(ev.Data)
				continue
			}
			out = append(out, "url:"+string(ev.Data))
		case EventHeadersComplete:
			ka := "close"
			if ev.KeepAlive {
				ka = "keep-alive"
			}
			out = append(out, "headers:"+ev.MethodName+":"+ka)
		case EventBody:
			if n := len(out); n > 0 && strings.HasPrefix(out[n-1], "body:") {
				out[n-1] += string(ev.Data)
				continue
			}
			out = append(out, "body:"+string(ev.Data))
		default:
			out = append(out, ev.Type.String())
		}
	}
	return out
}

func TestParser_SimpleGet(t *testing.T) {
	p := NewParser(0)
	events, err := collect(t, p, "GET / HTTP/1.1\r\n\r\n")
	if err != nil {
		t.Fatal(err)
	}

	got := strings.Join(summarize(events), "|")
	want := "message-begin|url:/|headers:GET:keep-alive|message-complete"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if events[2].Method != MethodGet {
		t.Errorf("Expected MethodGet, got %v", events[2].Method)
	}
}

func TestParser_ByteAtATimeMatchesWhole(t *testing.T) {
	raw := "GET /fib/100 HTTP/1.1\r\nHost: example\r\nConnection: Keep-Alive\r\n\r\n" +
		"POST /upload HTTP/1.0\r\nContent-Length: 5\r\n\r\nhello"

	whole, err := collect(t, NewParser(0), raw)
	if err != nil {
		t.Fatal(err)
	}

	chunks := make([]string, len(raw))
	for i := range raw {
		chunks[i] = raw[i : i+1]
	}
	split, err := collect(t, NewParser(0), chunks...)
	if err != nil {
		t.Fatal(err)
	}

	w := strings.Join(summarize(whole), "|")
	s := strings.Join(summarize(split), "|")
	if w != s {
		t.Errorf("Split feed diverged:\nwhole: %s\nsplit: %s", w, s)
	}

	want := "message-begin|url:/fib/100|headers:GET:keep-alive|message-complete|" +
		"message-begin|url:/upload|headers:POST:close|body:hello|message-complete"
	if w != want {
		t.Errorf("Expected %s, got %s", want, w)
	}
}

func TestParser_URLSplitAcrossFeeds(t *testing.T) {
	p := NewParser(0)

	events, err := p.Feed([]byte("GET /fi"))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[1].Type != EventURL || string(events[1].Data) != "/fi" {
		t.Fatalf("Unexpected first events: %v", summarize(events))
	}

	events, err = p.Feed([]byte("b/1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || string(events[0].Data) != "b/1" {
		t.Fatalf("Unexpected middle events: %v", summarize(events))
	}

	events, err = p.Feed([]byte("0 HTTP/1.1\r\n\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Join(summarize(events), "|")
	if got != "url:0|headers:GET:keep-alive|message-complete" {
		t.Errorf("Unexpected final events: %s", got)
	}
}

func TestParser_KeepAliveRules(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"http11 default", "GET / HTTP/1.1\r\n\r\n", true},
		{"http11 close", "GET / HTTP/1.1\r\nConnection: close\r\n\r\n", false},
		{"http11 close mixed case", "GET / HTTP/1.1\r\nCONNECTION: Close\r\n\r\n", false},
		{"http11 token list", "GET / HTTP/1.1\r\nConnection: Upgrade, close\r\n\r\n", false},
		{"http10 default", "GET / HTTP/1.0\r\n\r\n", false},
		{"http10 keep-alive", "GET / HTTP/1.0\r\nConnection: Keep-Alive\r\n\r\n", true},
		{"bare LF", "GET / HTTP/1.1\nConnection: close\n\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := collect(t, NewParser(0), tt.raw)
			if err != nil {
				t.Fatal(err)
			}
			var found bool
			for _, ev := range events {
				if ev.Type == EventHeadersComplete {
					found = true
					if ev.KeepAlive != tt.want {
						t.Errorf("Expected keep-alive=%v, got %v", tt.want, ev.KeepAlive)
					}
				}
			}
			if !found {
				t.Error("No headers-complete event")
			}
		})
	}
}

func TestParser_LeadingCRLFBetweenMessages(t *testing.T) {
	events, err := collect(t, NewParser(0), "GET /a HTTP/1.1\r\n\r\n\r\nGET /b HTTP/1.1\r\n\r\n")
	if err != nil {
		t.Fatal(err)
	}
	var completes int
	for _, ev := range events {
		if ev.Type == EventMessageComplete {
			completes++
		}
	}
	if completes != 2 {
		t.Errorf("Expected 2 messages, got %d", completes)
	}
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"garbage", "\x00\x01\x02", ErrInvalidRequest},
		{"bad version", "GET / HTTP/2.0\r\n\r\n", ErrUnsupportedVersion},
		{"long version", "GET / HTTP/1.1.1\r\n\r\n", ErrUnsupportedVersion},
		{"no target", "GET  HTTP/1.1\r\n\r\n", ErrInvalidRequest},
		{"long method", strings.Repeat("A", 20) + " / HTTP/1.1\r\n\r\n", ErrMethodTooLong},
		{"bad content length", "POST / HTTP/1.1\r\nContent-Length: abc\r\n\r\n", ErrInvalidContentLength},
		{"negative content length", "POST / HTTP/1.1\r\nContent-Length: -1\r\n\r\n", ErrInvalidContentLength},
		{"chunked", "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n", ErrUnsupportedTransferEncoding},
		{"header folding", "GET / HTTP/1.1\r\nX-A: b\r\n c\r\n\r\n", ErrInvalidRequest},
		{"huge header", "GET / HTTP/1.1\r\nX-Big: " + strings.Repeat("x", 9000) + "\r\n\r\n", ErrHeaderTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(0)
			_, err := collect(t, p, tt.raw)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Expected *ParseError, got %T", err)
			}

			// A dead parser keeps failing until Reset.
			if _, err := p.Feed([]byte("GET / HTTP/1.1\r\n\r\n")); !errors.Is(err, tt.want) {
				t.Errorf("Expected sticky error, got %v", err)
			}
			p.Reset()
			if _, err := p.Feed([]byte("GET / HTTP/1.1\r\n\r\n")); err != nil {
				t.Errorf("Reset parser should accept input: %v", err)
			}
		})
	}
}

func TestParser_LongTargetIsNotHeaderBytes(t *testing.T) {
	target := "/fib/10/" + strings.Repeat("a", 3*DefaultMaxHeaderBytes)
	raw := "GET " + target + " HTTP/1.1\r\nHost: x\r\n\r\n"

	events, err := collect(t, NewParser(0), raw[:5000], raw[5000:])
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	got := summarize(events)
	want := []string{"message-begin", "url:" + target, "headers:GET:keep-alive", "message-complete"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Unexpected events for a %d-byte target: %d events", len(target), len(got))
	}
}

func TestParser_EventsBeforeErrorAreReturned(t *testing.T) {
	p := NewParser(0)
	events, err := p.Feed([]byte("GET / HTTP/1.1\r\n\r\nBAD\x00"))
	if err == nil {
		t.Fatal("Expected error")
	}
	var completes int
	for _, ev := range events {
		if ev.Type == EventMessageComplete {
			completes++
		}
	}
	if completes != 1 {
		t.Errorf("Expected the first message to complete, got %d", completes)
	}
}

func BenchmarkParser_Feed(b *testing.B) {
	p := NewParser(0)
	raw := []byte("GET /fib/1000 HTTP/1.1\r\nHost: localhost\r\nUser-Agent: bench\r\nConnection: Keep-Alive\r\n\r\n")
	b.SetBytes(int64(len(raw)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := p.Feed(raw); err != nil {
			b.Fatal(err)
		}
	}
}
