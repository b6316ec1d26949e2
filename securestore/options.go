package securestore

import "strings"

// Options is the per-operation flag set controlling the write, read,
// and delete paths.
type Options uint32

const (
	// OptCompress layers the configured compressor on save.
	OptCompress Options = 1 << iota

	// OptEncrypt layers the configured encryptor on save.
	OptEncrypt

	// OptGenerateID allocates an id via the ID generator when the
	// location has none.
	OptGenerateID

	// OptBackup enqueues a backup notification after the write.
	OptBackup

	// OptIndex enqueues an index notification after the write.
	OptIndex

	// OptKeepDeletes soft-deletes on Delete instead of permanently
	// removing the object.
	OptKeepDeletes

	// OptNone disables everything.
	OptNone Options = 0

	// OptAll is the union of every option.
	OptAll = OptCompress | OptEncrypt | OptGenerateID | OptBackup | OptIndex | OptKeepDeletes
)

// Has reports whether every flag in q is set.
func (o Options) Has(q Options) bool {
	return o&q == q
}

// String renders the set flags for logs.
func (o Options) String() string {
	if o == OptNone {
		return "none"
	}

	names := []struct {
		flag Options
		name string
	}{
		{OptCompress, "compress"},
		{OptEncrypt, "encrypt"},
		{OptGenerateID, "generate_id"},
		{OptBackup, "backup"},
		{OptIndex, "index"},
		{OptKeepDeletes, "keep_deletes"},
	}

	var set []string
	for _, n := range names {
		if o.Has(n.flag) {
			set = append(set, n.name)
		}
	}
	return strings.Join(set, "|")
}
