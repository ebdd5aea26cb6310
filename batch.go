package bptree

import (
	"bufio"
	"errors"
	"os"
	"strconv"
	"strings"
)

// InsertFromFile inserts one entry per line of the file at path. Each
// line holds a single integer; keyFn and valFn build the typed entry
// from it. Blank and malformed lines are skipped with a warning, and
// keys already present are left untouched.
func (t *Tree[K, V]) InsertFromFile(path string, keyFn func(int64) K, valFn func(int64) V) error {
	return t.eachLine(path, func(fields []string) error {
		n, ok := t.parseInt(fields[0], fields)
		if !ok {
			return nil
		}
		return t.batchInsert(n, keyFn, valFn)
	})
}

// RemoveFromFile removes one key per line of the file at path, built by
// keyFn from the line's integer. Blank and malformed lines are skipped
// with a warning, and keys not present are ignored.
func (t *Tree[K, V]) RemoveFromFile(path string, keyFn func(int64) K) error {
	return t.eachLine(path, func(fields []string) error {
		n, ok := t.parseInt(fields[0], fields)
		if !ok {
			return nil
		}
		return t.batchRemove(n, keyFn)
	})
}

// ApplyFromFile replays a mixed instruction file: "i <n>" inserts the
// entry built from n, "d <n>" removes it. Anything else is skipped with
// a warning.
func (t *Tree[K, V]) ApplyFromFile(path string, keyFn func(int64) K, valFn func(int64) V) error {
	return t.eachLine(path, func(fields []string) error {
		if len(fields) != 2 {
			t.log.Warn("skipping malformed instruction", "line", strings.Join(fields, " "))
			return nil
		}
		n, ok := t.parseInt(fields[1], fields)
		if !ok {
			return nil
		}
		switch fields[0] {
		case "i":
			return t.batchInsert(n, keyFn, valFn)
		case "d":
			return t.batchRemove(n, keyFn)
		default:
			t.log.Warn("skipping unknown instruction", "op", fields[0])
			return nil
		}
	})
}

func (t *Tree[K, V]) eachLine(path string, fn func(fields []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if err := fn(fields); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (t *Tree[K, V]) parseInt(s string, fields []string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		t.log.Warn("skipping malformed instruction", "line", strings.Join(fields, " "))
		return 0, false
	}
	return n, true
}

func (t *Tree[K, V]) batchInsert(n int64, keyFn func(int64) K, valFn func(int64) V) error {
	err := t.Insert(keyFn(n), valFn(n))
	if errors.Is(err, ErrDuplicateKey) {
		return nil
	}
	return err
}

func (t *Tree[K, V]) batchRemove(n int64, keyFn func(int64) K) error {
	err := t.Remove(keyFn(n))
	if errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	return err
}
