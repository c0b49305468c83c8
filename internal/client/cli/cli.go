// Package cli implements the syncspace client commands on top of an opened
// workspace replica. Output goes to the writer given to New so commands can
// be exercised without a terminal.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/iudanet/syncspace/internal/client/events"
	"github.com/iudanet/syncspace/internal/client/workspace"
	"github.com/iudanet/syncspace/internal/models"
)

// Cli runs user commands against one replica
type Cli struct {
	out     io.Writer
	service *workspace.Service
}

// New creates a Cli printing to out
func New(out io.Writer, service *workspace.Service) *Cli {
	return &Cli{
		out:     out,
		service: service,
	}
}

// Create creates a node of the given type. Spaces and chats ignore rootID
// and parentID.
func (c *Cli) Create(ctx context.Context, nodeType, rootID, parentID, name string) error {
	fields := map[string]any{}
	if name != "" {
		fields["name"] = name
	}

	node, err := c.service.CreateNode(ctx, workspace.NodeInput{
		Type:     nodeType,
		RootID:   rootID,
		ParentID: parentID,
		Fields:   fields,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", nodeType, err)
	}

	c.printf("Created %s %s\n", node.Type, node.ID)
	if node.IsRoot() {
		c.printf("Root: %s\n", node.RootID)
	}
	return c.flush(ctx)
}

// Send posts a message under parentID
func (c *Cli) Send(ctx context.Context, rootID, parentID, text string, mentions []string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("message text is empty")
	}

	fields := map[string]any{"text": text}
	if len(mentions) > 0 {
		fields["mentions"] = mentions
	}

	node, err := c.service.CreateNode(ctx, workspace.NodeInput{
		Type:     models.NodeTypeMessage,
		RootID:   rootID,
		ParentID: parentID,
		Fields:   fields,
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	c.printf("Message %s sent\n", node.ID)
	return c.flush(ctx)
}

// Read marks a node as seen by the current user, and as opened when open is set
func (c *Cli) Read(ctx context.Context, rootID, nodeID string, open bool) error {
	mark := c.service.MarkSeen
	if open {
		mark = c.service.MarkOpened
	}

	interaction, err := mark(ctx, rootID, nodeID)
	if err != nil {
		return fmt.Errorf("failed to mark %s as seen: %w", nodeID, err)
	}

	if interaction.LastSeenAt != nil {
		c.printf("Seen %s at %s\n", nodeID, interaction.LastSeenAt.Format(time.RFC3339))
	}
	return c.flush(ctx)
}

// React adds or removes the current user's reaction on a node
func (c *Cli) React(ctx context.Context, rootID, nodeID, reaction string, remove bool) error {
	if remove {
		if err := c.service.RemoveReaction(ctx, rootID, nodeID, reaction); err != nil {
			return fmt.Errorf("failed to remove reaction: %w", err)
		}
		c.printf("Reaction %s removed from %s\n", reaction, nodeID)
	} else {
		if err := c.service.AddReaction(ctx, rootID, nodeID, reaction); err != nil {
			return fmt.Errorf("failed to add reaction: %w", err)
		}
		c.printf("Reaction %s added to %s\n", reaction, nodeID)
	}
	return c.flush(ctx)
}

// Edit sets and unsets attributes of a node. Values are given as key=value;
// a value that parses as JSON is stored as such, anything else as a string.
func (c *Cli) Edit(ctx context.Context, rootID, nodeID string, set, unset []string) error {
	fields, err := parseFields(set)
	if err != nil {
		return err
	}
	if len(fields) == 0 && len(unset) == 0 {
		return fmt.Errorf("nothing to change: use --set or --unset")
	}

	node, err := c.service.UpdateNode(ctx, rootID, nodeID, fields, unset)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", nodeID, err)
	}

	c.printf("Updated %s %s\n", node.Type, node.ID)
	return c.flush(ctx)
}

// Delete removes a node with its descendants
func (c *Cli) Delete(ctx context.Context, rootID, nodeID string) error {
	if err := c.service.DeleteNode(ctx, rootID, nodeID); err != nil {
		return fmt.Errorf("failed to delete %s: %w", nodeID, err)
	}

	c.printf("Deleted %s\n", nodeID)
	return c.flush(ctx)
}

// Write applies an edit to the rich document of a page
func (c *Cli) Write(ctx context.Context, rootID, documentID string, set, unset []string) error {
	fields, err := parseFields(set)
	if err != nil {
		return err
	}
	if len(fields) == 0 && len(unset) == 0 {
		return fmt.Errorf("nothing to change: use --set or --unset")
	}

	if err := c.service.AppendDocumentUpdate(ctx, rootID, documentID, fields, unset); err != nil {
		return fmt.Errorf("failed to update document %s: %w", documentID, err)
	}

	c.printf("Document %s updated\n", documentID)
	return c.flush(ctx)
}

// Attach registers the metadata of a local file under parentID
func (c *Cli) Attach(ctx context.Context, rootID, parentID, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	name := filepath.Base(path)
	file, err := c.service.AttachFile(ctx, rootID, parentID, name, mime.TypeByExtension(filepath.Ext(name)), info.Size())
	if err != nil {
		return fmt.Errorf("failed to attach %s: %w", name, err)
	}

	c.printf("File %s registered as %s (%d bytes)\n", file.Name, file.ID, file.Size)
	return nil
}

// List prints the nodes of a root in creation order
func (c *Cli) List(ctx context.Context, rootID string) error {
	nodes, err := c.service.Store().ListNodes(ctx, rootID)
	if err != nil {
		return fmt.Errorf("failed to list nodes: %w", err)
	}

	if len(nodes) == 0 {
		c.printf("No nodes found.\n")
		return nil
	}

	slices.SortFunc(nodes, func(a, b *models.Node) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})

	unseen := c.service.Radar().Unseen()

	c.printf("Found %d node(s):\n\n", len(nodes))
	for _, n := range nodes {
		marker := " "
		if _, ok := unseen[n.ID]; ok {
			marker = "*"
		}
		c.printf("%s %-8s %s", marker, n.Type, n.ID)
		if n.ParentID != "" {
			c.printf("  parent=%s", n.ParentID)
		}
		if label := nodeLabel(n); label != "" {
			c.printf("  %q", label)
		}
		c.printf("\n")
	}

	files, err := c.service.Store().ListFiles(ctx, rootID)
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}
	if len(files) > 0 {
		c.printf("\nFiles:\n")
		for _, f := range files {
			c.printf("  %s  %s  parent=%s  %d bytes  %s\n", f.ID, f.Name, f.ParentID, f.Size, f.Status)
		}
	}
	return nil
}

// Status prints the replica summary
func (c *Cli) Status(ctx context.Context) error {
	st, err := c.service.Status(ctx)
	if err != nil {
		return err
	}

	c.printf("=== Replica Status ===\n\n")
	c.printf("User:      %s\n", st.UserID)
	c.printf("Workspace: %s\n", st.WorkspaceID)
	c.printf("\n")

	if st.PendingMutations > 0 {
		c.printf("Pending mutations: %d\n", st.PendingMutations)
	} else {
		c.printf("Pending mutations: 0 (all local changes sent)\n")
	}

	c.printf("Roots: %d\n", len(st.Roots))
	for _, root := range st.Roots {
		c.printf("  %s\n", root)
	}

	c.printf("Cursors:\n")
	for _, cur := range st.Cursors {
		c.printf("  %-40s %d\n", cur.StreamKey, cur.Position)
	}

	c.printf("\nUnseen: %d  Mentions: %d\n", st.Radar.Totals.Unseen, st.Radar.Totals.Mentions)
	for _, kind := range slices.Sorted(maps.Keys(st.Radar.Kinds)) {
		counts := st.Radar.Kinds[kind]
		c.printf("  %-8s unseen=%d mentions=%d\n", kind, counts.Unseen, counts.Mentions)
	}
	return nil
}

// Watch prints radar totals whenever they change until ctx is done
func (c *Cli) Watch(ctx context.Context) error {
	changed := make(chan struct{}, 1)
	unsub := c.service.Bus().Subscribe(func(events.Event) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, events.TypeRadarDataUpdated)
	defer unsub()

	last := c.service.Radar().GetData().Totals
	c.printf("Unseen: %d  Mentions: %d\n", last.Unseen, last.Mentions)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			totals := c.service.Radar().GetData().Totals
			if totals == last {
				continue
			}
			last = totals
			c.printf("Unseen: %d  Mentions: %d\n", totals.Unseen, totals.Mentions)
		}
	}
}

// flush отправляет очередь сразу; ошибка сети не считается ошибкой команды,
// мутации останутся в очереди до следующего запуска
func (c *Cli) flush(ctx context.Context) error {
	res, err := c.service.Flush(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.printf("Server unavailable, changes stay queued: %v\n", err)
		return nil
	}
	if res.Sent > 0 {
		c.printf("Synced: %d sent, %d acknowledged, %d rejected\n", res.Sent, res.Acknowledged, res.Rejected)
	}
	return nil
}

func (c *Cli) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(c.out, format, a...)
}

// parseFields разбирает аргументы вида key=value
func parseFields(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", pair)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		fields[key] = value
	}
	return fields, nil
}

func nodeLabel(n *models.Node) string {
	for _, key := range []string{"text", "name"} {
		raw, ok := n.Attributes[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return ""
}
