package email

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
)

type BlockType string

const (
	ImageBlock BlockType = "image"
	TextBlock  BlockType = "text"
)

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ParseDirection accepts "up" and "down".
func ParseDirection(value string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(value))) {
	case Up:
		return Up, nil
	case Down:
		return Down, nil
	}
	return "", fmt.Errorf("invalid direction %q", value)
}

var (
	ErrBlockNotFound = errors.New("block not found")
	ErrEmptyContent  = errors.New("block content must not be empty")
)

type Block struct {
	ID      string    `json:"id"`
	Type    BlockType `json:"type"`
	Content string    `json:"content"`
	Rank    string    `json:"rank"`
}

const (
	documentHead = `<!DOCTYPE html><html><head><style>img { max-width: 100%; height: auto; display: block; margin-bottom: 10px; }</style></head><body>`
	documentTail = `</body></html>`

	// ExportFilename is the attachment name of an exported draft.
	ExportFilename = "email-template.html"
)

// Draft is an ordered list of email blocks. It is not safe for concurrent
// use; Store serialises access.
type Draft struct {
	blocks []Block
}

func (d *Draft) AddImage(url string) (Block, error) {
	return d.add(ImageBlock, url)
}

func (d *Draft) AddText(text string) (Block, error) {
	return d.add(TextBlock, text)
}

func (d *Draft) add(blockType BlockType, content string) (Block, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Block{}, ErrEmptyContent
	}

	last := ""
	if n := len(d.blocks); n > 0 {
		last = d.blocks[n-1].Rank
	}
	block := Block{
		ID:      uuid.NewString(),
		Type:    blockType,
		Content: content,
		Rank:    rankBetween(last, ""),
	}
	d.blocks = append(d.blocks, block)
	return block, nil
}

// Move swaps the block with its neighbour in the given direction. Moving the
// first block up or the last block down is a no-op.
func (d *Draft) Move(id string, direction Direction) error {
	idx := d.indexOf(id)
	if idx < 0 {
		return ErrBlockNotFound
	}

	target := idx - 1
	if direction == Down {
		target = idx + 1
	}
	if target < 0 || target >= len(d.blocks) {
		return nil
	}

	d.blocks[idx], d.blocks[target] = d.blocks[target], d.blocks[idx]
	rerank(d.blocks)
	return nil
}

func (d *Draft) Remove(id string) error {
	idx := d.indexOf(id)
	if idx < 0 {
		return ErrBlockNotFound
	}
	d.blocks = append(d.blocks[:idx], d.blocks[idx+1:]...)
	return nil
}

// Blocks returns a copy of the blocks in rank order.
func (d *Draft) Blocks() []Block {
	out := make([]Block, len(d.blocks))
	copy(out, d.blocks)
	return out
}

// HTML renders the draft as a standalone email document.
func (d *Draft) HTML() string {
	var b strings.Builder
	b.WriteString(documentHead)
	for _, block := range d.blocks {
		switch block.Type {
		case ImageBlock:
			b.WriteString(`<img src="`)
			b.WriteString(html.EscapeString(block.Content))
			b.WriteString(`" alt="Banner Image">`)
		case TextBlock:
			b.WriteString("<p>")
			b.WriteString(html.EscapeString(block.Content))
			b.WriteString("</p>")
		}
	}
	b.WriteString(documentTail)
	return b.String()
}

func (d *Draft) indexOf(id string) int {
	for i, block := range d.blocks {
		if block.ID == id {
			return i
		}
	}
	return -1
}
