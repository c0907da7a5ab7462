package registry

// PostRegistry defines the interface for post index operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type PostRegistry interface {
	UpsertPost(p PostRow, body string, links []LinkRow) error
	DeletePost(path string) error
	GetChecksum(path string) (string, error)
	GetPost(path string) (*PostRow, error)
	GetByIdentity(date, slug string) (*PostRow, error)
	ListPosts(limit, offset int, series, sort string, includeDrafts bool) ([]PostRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Graph() ([]GraphNode, []GraphLink, error)
	Backlinks(target string) ([]string, error)
	PublishedPosts() ([]PostRow, error)
	AllPaths() (map[string]struct{}, error)
	AllChecksums() (map[string]string, error)
	RecordPublished(rows []HistoryRow) error
	History() ([]HistoryRow, error)
	Close() error
}

// Verify *DB satisfies PostRegistry at compile time.
var _ PostRegistry = (*DB)(nil)
