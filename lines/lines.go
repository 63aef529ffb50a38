// Package lines implements the line reader input contract (ReadLines):
// partitioning a set of files' line-delimited content across workers
// by byte range (uncompressed files) or whole-file granularity
// (compressed files), per spec §6.
package lines

import (
	"bufio"
	"io"

	"github.com/sifdata/sif/fsadapter"
	"github.com/sifdata/sif/serr"
)

// Span is a byte range [Start, End) of one seekable file assigned to a
// worker.
type Span struct {
	Path  string
	Start int64
	End   int64
}

// Assignment is one worker's share of the input: some byte-range spans
// over seekable files, plus whole files that were non-seekable
// (compressed) and so had to be assigned entire.
type Assignment struct {
	Spans      []Span
	WholeFiles []string
}

// Assign splits infos across numWorkers workers and returns rank's
// share. Seekable files are virtually concatenated and cut into
// numWorkers roughly equal byte ranges; non-seekable files are hashed
// out whole, round-robin by file index (spec §6: "the line reader must
// linearly partition them across workers by file granularity").
func Assign(infos []fsadapter.Info, numWorkers, rank int) (Assignment, error) {
	if numWorkers <= 0 || rank < 0 || rank >= numWorkers {
		return Assignment{}, serr.New(serr.InvalidArgument, "lines.Assign", nil)
	}
	var a Assignment
	var seekable []fsadapter.Info
	for i, info := range infos {
		if info.Seekable {
			seekable = append(seekable, info)
			continue
		}
		if i%numWorkers == rank {
			a.WholeFiles = append(a.WholeFiles, info.Path)
		}
	}

	var total int64
	prefix := make([]int64, len(seekable)+1)
	for i, info := range seekable {
		total += info.Size
		prefix[i+1] = total
	}
	if total == 0 {
		return a, nil
	}
	myStart := int64(rank) * total / int64(numWorkers)
	myEnd := int64(rank+1) * total / int64(numWorkers)
	if rank == numWorkers-1 {
		myEnd = total
	}
	for i, info := range seekable {
		fileStart, fileEnd := prefix[i], prefix[i+1]
		lo := max64(myStart, fileStart)
		hi := min64(myEnd, fileEnd)
		if lo >= hi {
			continue
		}
		a.Spans = append(a.Spans, Span{Path: info.Path, Start: lo - fileStart, End: hi - fileStart})
	}
	return a, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// ReadSpan reads the lines belonging to span under the boundary rule: a
// line belongs to the worker whose range contains its first byte. The
// file is opened and seeked to Start-1; if Start is not itself a line
// boundary, the partial line already claimed by the previous worker is
// skipped, and reading continues through (inclusive of) the line that
// contains byte End-1. Empty lines are preserved.
func ReadSpan(fs *fsadapter.FS, span Span) ([]string, error) {
	f, err := fs.Fs.Open(span.Path)
	if err != nil {
		return nil, serr.New(serr.InvalidArgument, "lines.ReadSpan", err)
	}
	defer f.Close()

	if span.Start > 0 {
		if _, err := f.Seek(span.Start-1, io.SeekStart); err != nil {
			return nil, serr.New(serr.InvalidArgument, "lines.ReadSpan", err)
		}
	}
	br := bufio.NewReader(f)
	pos := span.Start
	if span.Start > 0 {
		// Skip the partial line already claimed by the previous
		// worker's range, up to and including the newline that ends it.
		// Reading from Start-1 means that when Start is itself a line
		// boundary only the preceding newline is discarded.
		discarded, err := br.ReadString('\n')
		pos = span.Start - 1 + int64(len(discarded))
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, serr.New(serr.InvalidArgument, "lines.ReadSpan", err)
		}
	}

	var out []string
	for pos < span.End {
		line, err := br.ReadString('\n')
		pos += int64(len(line))
		trimmed := trimNewline(line)
		if len(line) > 0 {
			out = append(out, trimmed)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, serr.New(serr.InvalidArgument, "lines.ReadSpan", err)
		}
	}
	return out, nil
}

// ReadWholeFile reads every line of a non-seekable (compressed) file
// assigned in its entirety to this worker.
func ReadWholeFile(fs *fsadapter.FS, path string) ([]string, error) {
	r, err := fs.OpenForRead(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out []string
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			out = append(out, trimNewline(line))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, serr.New(serr.InvalidArgument, "lines.ReadWholeFile", err)
		}
	}
	return out, nil
}

func trimNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '\r' {
		s = s[:len(s)-1]
	}
	return s
}
