package resources

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// fileScanConcurrency bounds the number of files sampled at once.
const fileScanConcurrency = 8

// ScanFiles walks the data directory and extracts per-file metadata. Files are
// sampled concurrently; a file whose metadata cannot be read is still listed,
// with its Error field set.
func ScanFiles(rootDir string) (*Filesystem, error) {
	rootPath, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	result := &Filesystem{RootPath: rootPath, Files: []FileInfo{}}
	if _, err := os.Stat(rootPath); os.IsNotExist(err) {
		return result, nil
	}

	var paths []string
	err = filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk data directory: %w", err)
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(fileScanConcurrency)
	for _, path := range paths {
		g.Go(func() error {
			info := sampleFile(rootPath, path)
			mu.Lock()
			result.Files = append(result.Files, info)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return result.Files[i].Path < result.Files[j].Path
	})
	result.TotalFiles = len(result.Files)
	return result, nil
}

func sampleFile(rootPath, path string) FileInfo {
	rel, err := filepath.Rel(rootPath, path)
	if err != nil {
		rel = path
	}
	info := FileInfo{Path: filepath.ToSlash(rel)}

	stat, err := os.Stat(path)
	if err != nil {
		info.Type = "other"
		info.Error = err.Error()
		return info
	}
	info.SizeBytes = stat.Size()
	info.LastModified = stat.ModTime().UTC()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		info.Type = "csv"
		sampleCSV(path, &info)
	case ".json":
		info.Type = "json"
		sampleJSON(path, &info)
	case ".txt", ".log":
		info.Type = "text"
		sampleText(path, &info)
	default:
		info.Type = "other"
	}
	return info
}

func sampleCSV(path string, info *FileInfo) {
	f, err := os.Open(path)
	if err != nil {
		info.Error = err.Error()
		return
	}
	defer f.Close()

	info.Delimiter = ","
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	headers, err := reader.Read()
	if err != nil {
		if err != io.EOF {
			info.Error = err.Error()
		}
		info.Headers = []string{}
		return
	}
	info.Headers = make([]string, 0, len(headers))
	for _, h := range headers {
		h = strings.TrimSpace(h)
		if h != "" {
			info.Headers = append(info.Headers, h)
		}
	}

	rows := 0
	for {
		if _, err := reader.Read(); err != nil {
			break
		}
		rows++
	}
	info.RowCountEstimate = rows
}

func sampleJSON(path string, info *FileInfo) {
	data, err := os.ReadFile(path)
	if err != nil {
		info.Error = err.Error()
		return
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		info.Error = err.Error()
		return
	}

	structure := &JSONStructure{}
	switch v := doc.(type) {
	case map[string]any:
		structure.RootType = "object"
		structure.Keys = sortedKeys(v)
	case []any:
		structure.RootType = "array"
		structure.ArrayLength = len(v)
		if len(v) > 0 {
			if first, ok := v[0].(map[string]any); ok {
				structure.ElementKeys = sortedKeys(first)
			}
		}
	case string:
		structure.RootType = "string"
	case float64:
		structure.RootType = "number"
	case bool:
		structure.RootType = "boolean"
	default:
		structure.RootType = "null"
	}
	info.Structure = structure
}

func sampleText(path string, info *FileInfo) {
	f, err := os.Open(path)
	if err != nil {
		info.Error = err.Error()
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if err := scanner.Err(); err != nil {
		info.Error = err.Error()
	}
	info.LineCount = lines
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
