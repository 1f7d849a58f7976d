package model

// Product is a catalog row.
type Product struct {
	Name        string `json:"name" db:"name"`
	ID          string `json:"id" db:"id"`
	Description string `json:"description" db:"description"`
	CompanyName string `json:"company_name" db:"company_name"`
}

type ArtifactKind string

const (
	ArtifactChart ArtifactKind = "chart"
	ArtifactTable ArtifactKind = "table"
	ArtifactImage ArtifactKind = "image"
)

// Artifact is a file a tool wrote to the public asset directory.
type Artifact struct {
	Kind ArtifactKind `json:"kind"`
	Name string       `json:"name"`
	Path string       `json:"-"`
	URL  string       `json:"url"`
}

// ToolResult is the outcome of one capability invocation.
type ToolResult struct {
	Tool      string     `json:"tool"`
	Summary   string     `json:"summary"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}
