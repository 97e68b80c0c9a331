package email

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func contents(blocks []Block) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.Content
	}
	return out
}

func TestDraft_AddKeepsInsertionOrder(t *testing.T) {
	var d Draft
	for _, url := range []string{"https://cdn/1.png", "https://cdn/2.png"} {
		if _, err := d.AddImage(url); err != nil {
			t.Fatalf("AddImage error: %v", err)
		}
	}
	if _, err := d.AddText("  Thanks for reading  "); err != nil {
		t.Fatalf("AddText error: %v", err)
	}

	blocks := d.Blocks()
	got := strings.Join(contents(blocks), ",")
	if got != "https://cdn/1.png,https://cdn/2.png,Thanks for reading" {
		t.Fatalf("unexpected order: %s", got)
	}
	for i := 1; i < len(blocks); i++ {
		if !(blocks[i-1].Rank < blocks[i].Rank) {
			t.Fatalf("ranks not increasing: %q then %q", blocks[i-1].Rank, blocks[i].Rank)
		}
	}
	if blocks[2].Type != TextBlock || blocks[0].Type != ImageBlock {
		t.Errorf("unexpected block types: %+v", blocks)
	}
}

func TestDraft_AddRejectsEmpty(t *testing.T) {
	var d Draft
	if _, err := d.AddImage("   "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestDraft_Move(t *testing.T) {
	tests := []struct {
		name      string
		move      int
		direction Direction
		want      string
	}{
		{name: "last up", move: 2, direction: Up, want: "a,c,b"},
		{name: "first down", move: 0, direction: Down, want: "b,a,c"},
		{name: "first up is no-op", move: 0, direction: Up, want: "a,b,c"},
		{name: "last down is no-op", move: 2, direction: Down, want: "a,b,c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Draft
			var ids []string
			for _, c := range []string{"a", "b", "c"} {
				block, err := d.AddText(c)
				if err != nil {
					t.Fatalf("AddText error: %v", err)
				}
				ids = append(ids, block.ID)
			}

			if err := d.Move(ids[tt.move], tt.direction); err != nil {
				t.Fatalf("Move error: %v", err)
			}
			if got := strings.Join(contents(d.Blocks()), ","); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDraft_MoveRewritesOnlyMovedBlock(t *testing.T) {
	var d Draft
	var blocks []Block
	for _, c := range []string{"a", "b", "c", "d"} {
		block, _ := d.AddText(c)
		blocks = append(blocks, block)
	}

	if err := d.Move(blocks[3].ID, Up); err != nil {
		t.Fatalf("Move error: %v", err)
	}

	changed := 0
	for _, after := range d.Blocks() {
		for _, before := range blocks {
			if before.ID == after.ID && before.Rank != after.Rank {
				changed++
			}
		}
	}
	if changed != 1 {
		t.Fatalf("expected exactly one rank rewrite, got %d", changed)
	}
}

func TestDraft_MoveAndRemoveUnknown(t *testing.T) {
	var d Draft
	if err := d.Move("missing", Up); !errors.Is(err, ErrBlockNotFound) {
		t.Fatalf("expected ErrBlockNotFound, got %v", err)
	}
	if err := d.Remove("missing"); !errors.Is(err, ErrBlockNotFound) {
		t.Fatalf("expected ErrBlockNotFound, got %v", err)
	}
}

func TestDraft_Remove(t *testing.T) {
	var d Draft
	first, _ := d.AddText("a")
	_, _ = d.AddText("b")

	if err := d.Remove(first.ID); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if got := strings.Join(contents(d.Blocks()), ","); got != "b" {
		t.Fatalf("expected b, got %s", got)
	}
}

func TestDraft_HTML(t *testing.T) {
	var d Draft
	if got := d.HTML(); got != documentHead+documentTail {
		t.Fatalf("unexpected empty document: %s", got)
	}

	_, _ = d.AddImage("https://cdn/banner.png?a=1&b=2")
	_, _ = d.AddText("Save <20%> today")

	want := `<!DOCTYPE html><html><head><style>img { max-width: 100%; height: auto; display: block; margin-bottom: 10px; }</style></head><body>` +
		`<img src="https://cdn/banner.png?a=1&amp;b=2" alt="Banner Image">` +
		`<p>Save &lt;20%&gt; today</p>` +
		`</body></html>`
	if got := d.HTML(); got != want {
		t.Fatalf("unexpected document:\n got %s\nwant %s", got, want)
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection(" UP "); err != nil || d != Up {
		t.Fatalf("expected up, got %q (%v)", d, err)
	}
	if d, err := ParseDirection("down"); err != nil || d != Down {
		t.Fatalf("expected down, got %q (%v)", d, err)
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Fatal("expected error for invalid direction")
	}
}

func TestStore_IsolatesUsers(t *testing.T) {
	store := NewStore()
	if _, err := store.AddImage("alice", "https://cdn/a.png"); err != nil {
		t.Fatalf("AddImage error: %v", err)
	}

	if got := len(store.Blocks("alice")); got != 1 {
		t.Fatalf("expected 1 block for alice, got %d", got)
	}
	if got := len(store.Blocks("bob")); got != 0 {
		t.Fatalf("expected no blocks for bob, got %d", got)
	}
	if !strings.Contains(store.HTML("alice"), "https://cdn/a.png") {
		t.Error("expected alice's export to contain her banner")
	}
	if err := store.Remove("bob", "anything"); !errors.Is(err, ErrBlockNotFound) {
		t.Fatalf("expected ErrBlockNotFound, got %v", err)
	}
}

func TestStore_ConcurrentAdds(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.AddText("alice", "hello")
		}()
	}
	wg.Wait()

	blocks := store.Blocks("alice")
	if len(blocks) != 20 {
		t.Fatalf("expected 20 blocks, got %d", len(blocks))
	}
	seen := map[string]bool{}
	for _, b := range blocks {
		if seen[b.Rank] {
			t.Fatalf("duplicate rank %q", b.Rank)
		}
		seen[b.Rank] = true
	}
}

func TestStore_MoveThroughStore(t *testing.T) {
	store := NewStore()
	first, _ := store.AddText("alice", "a")
	_, _ = store.AddText("alice", "b")

	if err := store.Move("alice", first.ID, Down); err != nil {
		t.Fatalf("Move error: %v", err)
	}
	if got := strings.Join(contents(store.Blocks("alice")), ","); got != "b,a" {
		t.Fatalf("expected b,a, got %s", got)
	}
}
