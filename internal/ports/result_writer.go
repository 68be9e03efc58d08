package ports

// Port: an append-only output table. Flush pushes buffered records to disk
// and reports the committed file size, which checkpoints store as the
// truncation offset for a later resume.
type ResultWriter interface {
	Append(record []string) error
	Flush() (int64, error)
}
