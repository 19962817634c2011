package proposal

import (
	"fmt"
	"os"
	"path/filepath"
)

// Sandbox materializes a proposal's files under a content-addressed
// workspace (sandbox/{proposal-id}/...) so deployments never touch
// production paths. Promotion out of the sandbox is a separate,
// explicit admin action and out of scope here.
type Sandbox struct {
	root string
}

// NewSandbox roots every workspace under root (config.ProposalConfig.SandboxRoot).
func NewSandbox(root string) *Sandbox {
	return &Sandbox{root: root}
}

// WorkspaceDir returns the workspace path for a proposal ID without
// creating it.
func (s *Sandbox) WorkspaceDir(proposalID string) string {
	return filepath.Join(s.root, proposalID)
}

// Materialize writes every create/modify file in p to its sandbox
// workspace and removes every delete entry, creating the workspace
// directory tree as needed.
func (s *Sandbox) Materialize(p *Proposal) error {
	dir := s.WorkspaceDir(p.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sandbox workspace: %w", err)
	}

	for _, f := range p.Files {
		target := filepath.Join(dir, f.Path)
		if !isWithin(dir, target) {
			return fmt.Errorf("file %s escapes sandbox root", f.Path)
		}

		switch f.Action {
		case ActionDelete:
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove %s: %w", f.Path, err)
			}
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create parent dirs for %s: %w", f.Path, err)
			}
			if err := os.WriteFile(target, []byte(f.Code), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", f.Path, err)
			}
		}
	}
	return nil
}

// Cleanup removes a proposal's entire sandbox workspace.
func (s *Sandbox) Cleanup(proposalID string) error {
	return os.RemoveAll(s.WorkspaceDir(proposalID))
}

func isWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == ".." {
		return false
	}
	return !filepath.IsAbs(rel) && rel[:min(3, len(rel))] != ".."+string(filepath.Separator)
}
