package trix

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/trix/pkg/errors"
)

const (
	// snippetContext is how many words either side of a match a snippet
	// keeps.
	snippetContext = 10
	// BoldStart and BoldEnd surround matched words in snippets.
	BoldStart = "<b>"
	BoldEnd   = "</b>"
	ellipsis  = " ... "
)

// snippetIndex maps item ids to their line in the original text through an
// offsets file and its own sparse index.
type snippetIndex struct {
	offsetsPath string
	textPath    string
	ixx         *SparseIndex
	offsets     *lineReader
	text        *lineReader
}

// SnippetPaths returns the offsets, offsets sparse index and candidate
// original text paths belonging to the word index at ixPath.
func SnippetPaths(ixPath string) (offsets, offsetsIxx string, texts []string) {
	base := strings.TrimSuffix(ixPath, ".ix")
	return base + ".offsets", base + ".offsets.ixx", []string{base + ".txt", base + ".tab"}
}

// InitSnippets opens the snippet side index. It is called implicitly by
// AddSnippets and is a no-op once it has succeeded.
func (t *Trix) InitSnippets() error {
	if t.snippets != nil {
		return nil
	}
	offsetsPath, ixxPath, textPaths := SnippetPaths(t.path)
	ixx, err := t.loadSparse(ixxPath, SnippetPrefixSize)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrSnippetUnavailable, err)
	}
	offsets, err := t.opener.Open(offsetsPath)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", apperrors.ErrSnippetUnavailable, offsetsPath, err)
	}
	var text Stream
	var textPath string
	for _, p := range textPaths {
		if text, err = t.opener.Open(p); err == nil {
			textPath = p
			break
		}
	}
	if text == nil {
		offsets.Close()
		return fmt.Errorf("%w: no original text beside %s: %v", apperrors.ErrSnippetUnavailable, t.path, err)
	}
	t.snippets = &snippetIndex{
		offsetsPath: offsetsPath,
		textPath:    textPath,
		ixx:         ixx,
		offsets:     newLineReader(offsets),
		text:        newLineReader(text),
	}
	t.logger.Debug("snippet index opened", "offsets", offsetsPath, "text", textPath, "ixx_entries", ixx.Len())
	return nil
}

// AddSnippets fills in the Snippet of every result. Failures never
// propagate as panics: the first problem is logged as a warning, the
// remaining results are left without snippets and the error is returned.
func (t *Trix) AddSnippets(results []*SearchResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("%w: %w", apperrors.ErrSnippetUnavailable, e)
			} else {
				err = fmt.Errorf("%w: %v", apperrors.ErrSnippetUnavailable, r)
			}
		}
		if err != nil {
			t.observer.SnippetFailure()
			t.logger.Warn("snippets unavailable", "path", t.path, "error", err)
		}
	}()
	if err := t.InitSnippets(); err != nil {
		return err
	}
	for _, res := range results {
		if err := t.addSnippet(res); err != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrSnippetUnavailable, err)
		}
	}
	return nil
}

// AddSnippet fills in the Snippet of one result.
func (t *Trix) AddSnippet(res *SearchResult) error {
	return t.AddSnippets([]*SearchResult{res})
}

func (t *Trix) addSnippet(res *SearchResult) error {
	text, err := t.snippets.itemText(res.ItemID)
	if err != nil {
		return err
	}
	res.Snippet = buildSnippet(text, res.WordPos)
	return nil
}

// itemText returns the original text of an item without its leading id.
func (si *snippetIndex) itemText(itemID string) (string, error) {
	offset, err := si.textOffset(itemID)
	if err != nil {
		return "", err
	}
	if err := si.text.seek(offset); err != nil {
		return "", fmt.Errorf("%s: %w", si.textPath, err)
	}
	line, ok, err := si.text.next()
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", si.textPath, err)
	}
	if !ok {
		return "", fmt.Errorf("%s: offset %d for %q is past end of file", si.textPath, offset, itemID)
	}
	id, rest := splitFirstField(line)
	if id != itemID {
		return "", fmt.Errorf("%s: offset %d holds %q, expected %q", si.textPath, offset, id, itemID)
	}
	return rest, nil
}

// textOffset scans the offsets file forward from the sparse index position
// for the line of itemID.
func (si *snippetIndex) textOffset(itemID string) (int64, error) {
	if err := si.offsets.seek(si.ixx.Lookup(itemID)); err != nil {
		return 0, fmt.Errorf("%s: %w", si.offsetsPath, err)
	}
	for {
		line, ok, err := si.offsets.next()
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", si.offsetsPath, err)
		}
		if !ok {
			break
		}
		id, rest := splitFirstField(line)
		if id == itemID {
			offset, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("%s: bad offset for %q: %w", si.offsetsPath, itemID, err)
			}
			return offset, nil
		}
		if id > itemID {
			break
		}
	}
	return 0, fmt.Errorf("%w: %q not in %s", apperrors.ErrItemNotFound, itemID, si.offsetsPath)
}

func (si *snippetIndex) close() error {
	err := si.offsets.close()
	if textErr := si.text.close(); err == nil {
		err = textErr
	}
	return err
}

// buildSnippet keeps the words within snippetContext of each matched
// position, bolds the matches and joins separated stretches with an
// ellipsis.
func buildSnippet(text string, wordPos []int) string {
	covered := roaring.New()
	matched := roaring.New()
	last := 0
	for _, pos := range wordPos {
		if pos < 0 {
			continue
		}
		lo := pos - snippetContext
		if lo < 0 {
			lo = 0
		}
		covered.AddRange(uint64(lo), uint64(pos+snippetContext+1))
		matched.Add(uint32(pos))
		if pos > last {
			last = pos
		}
	}
	var sb strings.Builder
	gap := false
	wordIx := 0
	for from := 0; wordIx <= last+snippetContext; wordIx++ {
		start, end, ok := NextWord(text, from)
		if !ok {
			break
		}
		from = end
		if !covered.Contains(uint32(wordIx)) {
			gap = true
			continue
		}
		if sb.Len() > 0 {
			if gap {
				sb.WriteString(ellipsis)
			} else {
				sb.WriteByte(' ')
			}
		}
		gap = false
		if matched.Contains(uint32(wordIx)) {
			sb.WriteString(BoldStart)
			sb.WriteString(text[start:end])
			sb.WriteString(BoldEnd)
		} else {
			sb.WriteString(text[start:end])
		}
	}
	return sb.String()
}
