package risk

import (
	"net/url"
	"strings"

	"github.com/wardenhq/warden/internal/policy"
)

// detector inspects a context and reports one factor when it applies.
type detector func(policy.Context) (Factor, bool)

// detectors is the fixed factor table, evaluated in order. Scores are
// fixed per factor; ordering only affects which names appear first in
// the summary line.
var detectors = []detector{
	detectDownloadAndExecute,
	detectRootLevelDelete,
	detectRecursiveForceDelete,
	detectWildcardPermissionChange,
	detectSensitivePath,
	detectPrivilegeEscalation,
	detectExternalEgress,
	detectDestructiveKind,
	detectAgentSpawn,
}

// sensitivePathFragments flags credential-adjacent and secret-bearing
// targets. Matching is case-insensitive substring over the path.
var sensitivePathFragments = []string{
	".ssh/", ".ssh", ".aws/", ".config/gcloud/", ".env",
	"secrets.", "credentials", "id_rsa", ".netrc", ".kube/config",
}

func detectDownloadAndExecute(ctx policy.Context) (Factor, bool) {
	if ctx.Kind != policy.ActionBashExecute || !isPipeToShell(ctx.Command) {
		return Factor{}, false
	}
	return Factor{
		Name:        "Download & Execute",
		Category:    "command",
		Description: "command pipes a network fetch into a shell",
		Score:       55,
	}, true
}

func detectRootLevelDelete(ctx policy.Context) (Factor, bool) {
	target := ""
	switch ctx.Kind {
	case policy.ActionFileDelete:
		target = ctx.Path
	case policy.ActionBashExecute:
		cmd := strings.ToLower(ctx.Command)
		if !strings.HasPrefix(strings.TrimSpace(cmd), "rm") {
			return Factor{}, false
		}
		for _, tok := range strings.Fields(cmd)[1:] {
			if strings.HasPrefix(tok, "-") {
				continue
			}
			target = tok
			break
		}
	default:
		return Factor{}, false
	}
	if !isRootLevel(target) {
		return Factor{}, false
	}
	return Factor{
		Name:        "Root-level Delete",
		Category:    "path",
		Description: "deletion targets the filesystem root or a top-level directory",
		Score:       50,
	}, true
}

func detectRecursiveForceDelete(ctx policy.Context) (Factor, bool) {
	if ctx.Kind != policy.ActionBashExecute {
		return Factor{}, false
	}
	cmd := strings.ToLower(ctx.Command)
	if !strings.Contains(cmd, "rm ") {
		return Factor{}, false
	}
	hasR := false
	hasF := false
	for _, tok := range strings.Fields(cmd) {
		if !strings.HasPrefix(tok, "-") || strings.HasPrefix(tok, "--") {
			if tok == "--recursive" {
				hasR = true
			}
			if tok == "--force" {
				hasF = true
			}
			continue
		}
		if strings.ContainsAny(tok, "rR") {
			hasR = true
		}
		if strings.Contains(tok, "f") {
			hasF = true
		}
	}
	if !hasR || !hasF {
		return Factor{}, false
	}
	return Factor{
		Name:        "Recursive Force Delete",
		Category:    "command",
		Description: "rm with recursive and force flags",
		Score:       30,
	}, true
}

func detectWildcardPermissionChange(ctx policy.Context) (Factor, bool) {
	if ctx.Kind != policy.ActionBashExecute {
		return Factor{}, false
	}
	cmd := strings.ToLower(ctx.Command)
	if !strings.Contains(cmd, "chmod") && !strings.Contains(cmd, "chown") {
		return Factor{}, false
	}
	if !strings.Contains(cmd, "*") && !strings.Contains(cmd, "777") && !strings.Contains(cmd, "-r") {
		return Factor{}, false
	}
	return Factor{
		Name:        "Wildcard Permission Change",
		Category:    "permission",
		Description: "broad or recursive permission change",
		Score:       30,
	}, true
}

func detectSensitivePath(ctx policy.Context) (Factor, bool) {
	subject := ctx.Path
	if ctx.Kind == policy.ActionBashExecute {
		subject = ctx.Command
	}
	if subject == "" {
		return Factor{}, false
	}
	lower := strings.ToLower(subject)
	for _, frag := range sensitivePathFragments {
		if strings.Contains(lower, frag) {
			return Factor{
				Name:        "Sensitive Path",
				Category:    "path",
				Description: "touches a credential-adjacent or secret-bearing location (" + frag + ")",
				Score:       25,
			}, true
		}
	}
	return Factor{}, false
}

func detectPrivilegeEscalation(ctx policy.Context) (Factor, bool) {
	if ctx.Kind != policy.ActionBashExecute {
		return Factor{}, false
	}
	cmd := strings.TrimSpace(strings.ToLower(ctx.Command))
	if !strings.HasPrefix(cmd, "sudo ") && !strings.Contains(cmd, " sudo ") && !strings.HasPrefix(cmd, "doas ") {
		return Factor{}, false
	}
	return Factor{
		Name:        "Privilege Escalation",
		Category:    "command",
		Description: "command runs under elevated privileges",
		Score:       20,
	}, true
}

func detectExternalEgress(ctx policy.Context) (Factor, bool) {
	if ctx.Kind != policy.ActionNetworkRequest {
		return Factor{}, false
	}
	score := 10
	desc := "outbound network request"
	if u, err := url.Parse(ctx.URL); err == nil && u.Scheme == "http" {
		score = 20
		desc = "outbound request over plaintext http"
	}
	return Factor{
		Name:        "External Egress",
		Category:    "network",
		Description: desc,
		Score:       score,
	}, true
}

func detectDestructiveKind(ctx policy.Context) (Factor, bool) {
	if ctx.Kind != policy.ActionFileDelete {
		return Factor{}, false
	}
	return Factor{
		Name:        "File Deletion",
		Category:    "path",
		Description: "irreversible file removal",
		Score:       15,
	}, true
}

func detectAgentSpawn(ctx policy.Context) (Factor, bool) {
	if ctx.Kind != policy.ActionAgentSpawn {
		return Factor{}, false
	}
	return Factor{
		Name:        "Agent Spawn",
		Category:    "process",
		Description: "spawns a sub-agent with its own action stream",
		Score:       10,
	}, true
}

// isPipeToShell detects "curl ... | sh" shapes: a downloader on the left
// of a pipe and a shell on the right.
func isPipeToShell(cmd string) bool {
	cmd = strings.ToLower(cmd)
	if !strings.Contains(cmd, "|") {
		return false
	}
	downloaders := []string{"curl", "wget", "fetch"}
	hasDownloader := false
	for _, d := range downloaders {
		if strings.Contains(cmd, d) {
			hasDownloader = true
			break
		}
	}
	if !hasDownloader {
		return false
	}
	shells := []string{"sh", "bash", "zsh", "fish", "dash"}
	parts := strings.Split(cmd, "|")
	for i := 1; i < len(parts); i++ {
		trimmed := strings.TrimSpace(parts[i])
		for _, s := range shells {
			if trimmed == s || strings.HasPrefix(trimmed, s+" ") {
				return true
			}
		}
	}
	return false
}

// isRootLevel reports whether target is / or a direct child of /.
func isRootLevel(target string) bool {
	if target == "" || !strings.HasPrefix(target, "/") {
		return false
	}
	trimmed := strings.TrimSuffix(target, "/*")
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" {
		return true // "/" or "/*"
	}
	return !strings.Contains(trimmed[1:], "/")
}
