package history

import "time"

// Tool identifies the drawing tool that produced a stroke.
type Tool string

const (
	ToolBrush  Tool = "brush"
	ToolEraser Tool = "eraser"
)

// Valid reports whether t is a known tool.
func (t Tool) Valid() bool {
	return t == ToolBrush || t == ToolEraser
}

const (
	// MinStrokeWidth and MaxStrokeWidth bound the accepted stroke width.
	MinStrokeWidth = 1
	MaxStrokeWidth = 50
)

// Point is a single canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Operation is one durable, replayable drawing action stored in a room's
// log. Immutable once stored; the ID is assigned by the log on Add.
type Operation struct {
	ID          int       `json:"id"`
	Kind        string    `json:"kind"`
	AuthorID    string    `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	AuthorColor string    `json:"author_color"`
	Tool        Tool      `json:"tool"`
	Color       string    `json:"color"`
	Width       int       `json:"width"`
	Points      []Point   `json:"points"`
	CreatedAt   time.Time `json:"created_at"`
}

// KindStroke is the only operation kind currently produced.
const KindStroke = "stroke"
