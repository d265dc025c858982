package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/klevu/module-m2-indexing-sub002/internal/app"
	"github.com/klevu/module-m2-indexing-sub002/pkg/discovery"
	"github.com/klevu/module-m2-indexing-sub002/pkg/indexsync"
	routesdiscovery "github.com/klevu/module-m2-indexing-sub002/pkg/routes/discovery"
)

const (
	kindEntity    = "entity"
	kindAttribute = "attribute"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func validKind(kind string) error {
	if kind != kindEntity && kind != kindAttribute {
		return fmt.Errorf("--kind must be %q or %q, got %q", kindEntity, kindAttribute, kind)
	}
	return nil
}

func newDiscoverCommand(opts *options) *cobra.Command {
	var kind, file string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Reconcile the mirror with a snapshot file",
		Long: "Reads a JSON file shaped like the body of POST /discovery/entities or " +
			"POST /discovery/attributes and runs one discovery pass over it.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validKind(kind); err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			return opts.withRuntime(cmd.Context(), false, func(ctx context.Context, r *app.Runtime) error {
				if kind == kindEntity {
					return discoverEntities(ctx, r, data, cmd.OutOrStdout())
				}
				return discoverAttributes(ctx, r, data, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", kindEntity, "entity or attribute")
	cmd.Flags().StringVar(&file, "file", "", "snapshot file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func discoverEntities(ctx context.Context, r *app.Runtime, data []byte, out io.Writer) error {
	var req routesdiscovery.EntityDiscoveryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("invalid snapshot file: %w", err)
	}
	providers := make([]discovery.EntityProvider, 0, len(req.Snapshots))
	for _, entityType := range slices.Sorted(maps.Keys(req.Snapshots)) {
		providers = append(providers, discovery.NewSnapshotEntityProvider(entityType, req.Snapshots[entityType]))
	}
	o, err := r.Services.EntityDiscovery(providers)
	if err != nil {
		return err
	}
	return writeJSON(out, o.Execute(ctx, req.Request))
}

func discoverAttributes(ctx context.Context, r *app.Runtime, data []byte, out io.Writer) error {
	var req routesdiscovery.AttributeDiscoveryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("invalid snapshot file: %w", err)
	}
	providers := make([]discovery.AttributeProvider, 0, len(req.Snapshots))
	for _, attributeType := range slices.Sorted(maps.Keys(req.Snapshots)) {
		providers = append(providers, discovery.NewSnapshotAttributeProvider(attributeType, req.Snapshots[attributeType]))
	}
	o, err := r.Services.AttributeDiscovery(providers)
	if err != nil {
		return err
	}
	return writeJSON(out, o.Execute(ctx, req.Request))
}

func newSyncCommand(opts *options) *cobra.Command {
	var kind string
	var req indexsync.SyncRequest
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push pending mirror rows to the remote index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validKind(kind); err != nil {
				return err
			}
			return opts.withRuntime(cmd.Context(), false, func(ctx context.Context, r *app.Runtime) error {
				var runner indexsync.Runner = r.Services.EntitySync
				if kind == kindAttribute {
					runner = r.Services.AttributeSync
				}
				return writeJSON(cmd.OutOrStdout(), indexsync.Collect(runner.Execute(ctx, req)))
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", kindEntity, "entity or attribute")
	cmd.Flags().StringSliceVar(&req.APIKeys, "api-key", nil, "accounts to sync, all when empty")
	cmd.Flags().StringSliceVar(&req.Types, "type", nil, "types to sync, all when empty")
	return cmd
}

func newConsolidateHistoryCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "consolidate-history",
		Short: "Fold sync history into one row per record and day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime(cmd.Context(), false, func(ctx context.Context, r *app.Runtime) error {
				summary, err := r.Services.Consolidate.Execute(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func newCleanHistoryCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clean-history",
		Short: "Delete consolidated history past the retention period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime(cmd.Context(), false, func(ctx context.Context, r *app.Runtime) error {
				summary, err := r.Services.Clean.Execute(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}
