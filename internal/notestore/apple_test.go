package notestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/arnvik/raido/internal/apperr"
)

func TestApple_ReadNotFound(t *testing.T) {
	a := NewApple()
	a.SetRunner(func(_ context.Context, _ ...string) ([]byte, error) {
		return []byte("script error: note not found (1)"), fmt.Errorf("exit status 1")
	})
	if _, err := a.Read(context.Background(), "Gone"); !errors.Is(err, apperr.ErrNoteNotFound) {
		t.Fatalf("want ErrNoteNotFound, got %v", err)
	}
}

func TestApple_ReadTrimsTrailingNewline(t *testing.T) {
	a := NewApple()
	a.SetRunner(func(_ context.Context, args ...string) ([]byte, error) {
		if args[len(args)-1] != "Inbox" {
			t.Fatalf("title not passed as argv: %v", args)
		}
		return []byte("<div>https://a.com/1</div>\n"), nil
	})
	body, err := a.Read(context.Background(), "Inbox")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if body != "<div>https://a.com/1</div>" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestApple_WritePassesBodyThroughFile(t *testing.T) {
	a := NewApple()
	var got string
	a.SetRunner(func(_ context.Context, args ...string) ([]byte, error) {
		// args: -e, script, title, tmpfile
		data, err := os.ReadFile(args[len(args)-1])
		if err != nil {
			t.Fatalf("read temp: %v", err)
		}
		got = string(data)
		return nil, nil
	})
	if err := a.Write(context.Background(), "Inbox", "replaced body"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got != "replaced body" {
		t.Fatalf("body not delivered: %q", got)
	}
}
