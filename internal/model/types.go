package model

import (
	"path/filepath"
	"strings"
	"time"
)

// Category is the coarse file-type classification derived from the
// extension unless content extraction overrides it.
type Category string

const (
	CategoryDocument Category = "document"
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryCode     Category = "code"
	CategoryArchive  Category = "archive"
	CategoryOther    Category = "other"
)

var extensionCategories = map[string]Category{
	".pdf": CategoryDocument, ".doc": CategoryDocument, ".docx": CategoryDocument,
	".txt": CategoryDocument, ".md": CategoryDocument, ".rtf": CategoryDocument,
	".odt": CategoryDocument, ".csv": CategoryDocument, ".json": CategoryDocument,
	".xml": CategoryDocument, ".log": CategoryDocument,

	".jpg": CategoryImage, ".jpeg": CategoryImage, ".png": CategoryImage,
	".gif": CategoryImage, ".bmp": CategoryImage, ".svg": CategoryImage, ".webp": CategoryImage,

	".mp4": CategoryVideo, ".avi": CategoryVideo, ".mov": CategoryVideo,
	".mkv": CategoryVideo, ".wmv": CategoryVideo, ".flv": CategoryVideo, ".webm": CategoryVideo,

	".mp3": CategoryAudio, ".wav": CategoryAudio, ".flac": CategoryAudio,
	".aac": CategoryAudio, ".ogg": CategoryAudio,

	".py": CategoryCode, ".js": CategoryCode, ".ts": CategoryCode, ".go": CategoryCode,
	".java": CategoryCode, ".cpp": CategoryCode, ".c": CategoryCode, ".h": CategoryCode,
	".php": CategoryCode, ".rb": CategoryCode, ".rs": CategoryCode, ".sh": CategoryCode,
	".html": CategoryCode, ".css": CategoryCode, ".sql": CategoryCode,

	".zip": CategoryArchive, ".rar": CategoryArchive, ".7z": CategoryArchive,
	".tar": CategoryArchive, ".gz": CategoryArchive, ".bz2": CategoryArchive,
}

// CategoryForExtension maps a file extension (with or without the leading
// dot) to its category. Unknown extensions map to CategoryOther.
func CategoryForExtension(ext string) Category {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return CategoryOther
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if c, ok := extensionCategories[ext]; ok {
		return c
	}
	return CategoryOther
}

// CategoryForPath derives the category from the path's extension.
func CategoryForPath(path string) Category {
	return CategoryForExtension(filepath.Ext(path))
}

// FileRecord is the canonical indexed state of one path on disk.
// Path is the unique key and the join key across the lexical index and
// the embedding table.
type FileRecord struct {
	Path          string    `json:"path"`
	Name          string    `json:"name"`
	Extension     string    `json:"extension,omitempty"`
	SizeBytes     int64     `json:"size_bytes"`
	ModifiedTime  time.Time `json:"modified_time"`
	CreatedTime   time.Time `json:"created_time,omitempty"`
	Category      Category  `json:"category"`
	ContentDigest string    `json:"content_digest,omitempty"`
	ExtractedText string    `json:"extracted_text,omitempty"`
	Embedding     []float32 `json:"embedding,omitempty"`
	LastIndexedAt time.Time `json:"last_indexed_at"`
}

type DeletionReason string

const (
	ReasonUserAction DeletionReason = "user_action"
	ReasonCleanup    DeletionReason = "cleanup"
	ReasonUnknown    DeletionReason = "unknown"
)

// DeletionRecord is an append-only history entry for a confirmed deletion.
type DeletionRecord struct {
	ID            string         `json:"id"`
	OriginalPath  string         `json:"original_path"`
	Filename      string         `json:"filename"`
	SizeBytes     int64          `json:"size_bytes"`
	Category      Category       `json:"category"`
	ContentDigest string         `json:"content_digest,omitempty"`
	DeletedAt     time.Time      `json:"deleted_at"`
	Reason        DeletionReason `json:"reason"`
	Recoverable   bool           `json:"recoverable"`
	BackupPath    string         `json:"backup_path,omitempty"`
}

type MovementType string

const (
	MoveArchive    MovementType = "archive"
	MoveReorganize MovementType = "reorganize"
	MoveBackup     MovementType = "backup"
	MoveUnknown    MovementType = "unknown"
)

// MovementRecord is an append-only history entry for a confirmed relocation.
type MovementRecord struct {
	ID           string       `json:"id"`
	OriginalPath string       `json:"original_path"`
	NewPath      string       `json:"new_path"`
	Filename     string       `json:"filename"`
	SizeBytes    int64        `json:"size_bytes"`
	MovementType MovementType `json:"movement_type"`
	Reason       string       `json:"reason,omitempty"`
	MovedAt      time.Time    `json:"moved_at"`
}

// Hit is one ranked search result.
type Hit struct {
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	Score        float64   `json:"score"`
	SizeBytes    int64     `json:"size"`
	ModifiedTime time.Time `json:"modified_time"`
	Category     Category  `json:"category"`
	Snippet      string    `json:"snippet,omitempty"`
}

// Method discloses how much of the search pipeline actually ran.
type Method string

const (
	MethodLexical        Method = "lexical"
	MethodHybrid         Method = "hybrid"
	MethodHybridUnranked Method = "hybrid_unranked"
)

// CategoryStat aggregates live records for one category.
type CategoryStat struct {
	Count      int   `json:"count"`
	TotalBytes int64 `json:"total_bytes"`
}

// DeletionStats summarizes the deletion/movement history.
type DeletionStats struct {
	TotalDeleted   int              `json:"total_deleted_files"`
	DeletedToday   int              `json:"deleted_today"`
	Recoverable    int              `json:"recoverable_files"`
	ByCategory     map[Category]int `json:"category_breakdown"`
	TotalMovements int              `json:"total_file_movements"`
}

// DuplicateGroup lists live records sharing one content digest.
type DuplicateGroup struct {
	ContentDigest string   `json:"content_digest"`
	Paths         []string `json:"paths"`
	SizeBytes     int64    `json:"size_bytes"`
}
