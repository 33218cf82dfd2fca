package toolapi

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FilesAdapter simulates the files tool. Seed content is carried over from
// original_source/aegis/adapters/files.py's FilesAdapter, which is exactly
// the fixture scenario 3 requires (folder_prefix condition over /hr-docs/
// vs /legal/).
type FilesAdapter struct {
	mu    sync.Mutex
	files map[string]string
}

func NewFilesAdapter() *FilesAdapter {
	return &FilesAdapter{
		files: map[string]string{
			"/hr-docs/employee-handbook.txt": "Employee Handbook Version 2.0\n\nWelcome to the company...",
			"/hr-docs/benefits.txt":          "Benefits Information\n\nHealth Insurance: ...",
			"/legal/contract.docx":           "CONFIDENTIAL LEGAL CONTRACT\n\nThis agreement...",
		},
	}
}

func (f *FilesAdapter) Invoke(ctx context.Context, action string, params map[string]interface{}) (Result, error) {
	select {
	case <-time.After(5 * time.Millisecond):
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	path, _ := params["path"].(string)
	if path == "" {
		return Result{}, fmt.Errorf("files: path is required")
	}

	switch action {
	case "read":
		f.mu.Lock()
		content, ok := f.files[path]
		f.mu.Unlock()
		if !ok {
			return Result{}, fmt.Errorf("files: %q not found", path)
		}
		return Result{Body: map[string]interface{}{"path": path, "content": content}}, nil

	case "write":
		content, _ := params["content"].(string)
		f.mu.Lock()
		f.files[path] = content
		f.mu.Unlock()
		return Result{Body: map[string]interface{}{"path": path, "status": "written"}}, nil

	default:
		return Result{}, fmt.Errorf("files: action %q not supported", action)
	}
}
