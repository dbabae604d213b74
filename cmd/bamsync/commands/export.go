package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/netgrove/bamsync/pkg/bam"
	"github.com/netgrove/bamsync/pkg/model"
	"github.com/netgrove/bamsync/pkg/parser"
)

var (
	exportConfiguration string
	exportView          string
	exportOut           string
	exportLimit         int
)

var exportCmd = &cobra.Command{
	Use:   "export <kind>",
	Short: "Export existing server objects as a CSV file",
	Long: `Dump existing objects of one kind into the CSV format apply consumes.
The output is a starting point for bulk edits: every row carries action
"create", so applying it unchanged in upsert mode is a no-op for
objects that still match.

Supported kinds:
  configuration   top level
  tag_group       top level
  view            requires --configuration
  ip4_block       requires --configuration
  ip4_network     requires --configuration
  dns_zone        requires --configuration and --view

Examples:
  bamsync export configuration --out configs.csv
  bamsync export ip4_network --configuration Corp --out networks.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportConfiguration, "configuration", "", "configuration to export from")
	exportCmd.Flags().StringVar(&exportView, "view", "", "DNS view to export from (dns_zone only)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "write to this file instead of stdout")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "export at most this many objects (0 = all)")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg, false)
	if err != nil {
		return err
	}

	ctx := context.Background()
	kind := model.ObjectType(strings.ToLower(args[0]))

	rows, err := exportKind(ctx, client, kind)
	if err != nil {
		return err
	}
	if exportLimit > 0 && len(rows) > exportLimit {
		rows = rows[:exportLimit]
	}

	out := os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOut, err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	comments := []string{
		fmt.Sprintf("exported %d %s objects from %s", len(rows), kind, cfg.Server.URL),
		fmt.Sprintf("generated %s", time.Now().UTC().Format(time.RFC3339)),
	}
	if err := parser.WriteRows(out, rows, comments); err != nil {
		return err
	}
	if exportOut != "" {
		fmt.Printf("wrote %d rows to %s\n", len(rows), exportOut)
	}
	return nil
}

func exportKind(ctx context.Context, client *bam.Client, kind model.ObjectType) ([]*model.Row, error) {
	switch kind {
	case model.TypeConfiguration:
		entities, err := client.List(ctx, "/"+bam.CollectionConfigurations, bam.ListOptions{})
		if err != nil {
			return nil, err
		}
		return entitiesToRows(kind, "", "", entities, func(e *bam.Entity, row *model.Row) {
			row.Fields["name"] = e.Name
			if d, ok := e.Properties["description"].(string); ok && d != "" {
				row.Fields["description"] = d
			}
		}), nil

	case model.TypeTagGroup:
		entities, err := client.List(ctx, "/"+bam.CollectionTagGroups, bam.ListOptions{})
		if err != nil {
			return nil, err
		}
		return entitiesToRows(kind, "", "", entities, func(e *bam.Entity, row *model.Row) {
			row.Fields["name"] = e.Name
		}), nil

	case model.TypeView:
		config, err := requireConfiguration(ctx, client)
		if err != nil {
			return nil, err
		}
		entities, err := client.ListUnder(ctx, bam.CollectionConfigurations, config.ID, bam.CollectionViews, bam.ListOptions{})
		if err != nil {
			return nil, err
		}
		return entitiesToRows(kind, exportConfiguration, "", entities, func(e *bam.Entity, row *model.Row) {
			row.Fields["name"] = e.Name
		}), nil

	case model.TypeIP4Block:
		config, err := requireConfiguration(ctx, client)
		if err != nil {
			return nil, err
		}
		entities, err := client.ListUnder(ctx, bam.CollectionConfigurations, config.ID, bam.CollectionBlocks, bam.ListOptions{})
		if err != nil {
			return nil, err
		}
		return entitiesToRows(kind, exportConfiguration, "", entities, func(e *bam.Entity, row *model.Row) {
			row.Fields["cidr"] = e.Range
			if e.Name != "" {
				row.Fields["name"] = e.Name
			}
		}), nil

	case model.TypeIP4Network:
		config, err := requireConfiguration(ctx, client)
		if err != nil {
			return nil, err
		}
		entities, err := client.ListUnder(ctx, bam.CollectionConfigurations, config.ID, bam.CollectionNetworks, bam.ListOptions{})
		if err != nil {
			return nil, err
		}
		return entitiesToRows(kind, exportConfiguration, "", entities, func(e *bam.Entity, row *model.Row) {
			row.Fields["cidr"] = e.Range
			if e.Name != "" {
				row.Fields["name"] = e.Name
			}
			if g, ok := e.Properties["gateway"].(string); ok && g != "" {
				row.Fields["gateway"] = g
			}
		}), nil

	case model.TypeDNSZone:
		config, err := requireConfiguration(ctx, client)
		if err != nil {
			return nil, err
		}
		if exportView == "" {
			return nil, fmt.Errorf("exporting %s requires --view", kind)
		}
		view, err := client.GetViewByName(ctx, config.ID, exportView)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve view %q: %w", exportView, err)
		}
		entities, err := client.ListUnder(ctx, bam.CollectionViews, view.ID, bam.CollectionZones, bam.ListOptions{})
		if err != nil {
			return nil, err
		}
		return entitiesToRows(kind, exportConfiguration, exportView, entities, func(e *bam.Entity, row *model.Row) {
			row.Fields["fqdn"] = e.AbsoluteName
			if d, ok := e.Properties["deployable"].(bool); ok && d {
				row.Fields["deployable"] = "true"
			}
		}), nil

	default:
		return nil, fmt.Errorf("kind %q is not exportable; see bamsync export --help", kind)
	}
}

func requireConfiguration(ctx context.Context, client *bam.Client) (*bam.Entity, error) {
	if exportConfiguration == "" {
		return nil, fmt.Errorf("this kind requires --configuration")
	}
	config, err := client.GetConfigurationByName(ctx, exportConfiguration)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configuration %q: %w", exportConfiguration, err)
	}
	return config, nil
}

func entitiesToRows(kind model.ObjectType, configuration, view string, entities []bam.Entity, fill func(*bam.Entity, *model.Row)) []*model.Row {
	rows := make([]*model.Row, 0, len(entities))
	for i := range entities {
		row := &model.Row{
			RowID:         fmt.Sprintf("%s-%d", kind, i+1),
			Action:        model.ActionCreate,
			ObjectType:    kind,
			Configuration: configuration,
			View:          view,
			Fields:        make(map[string]string),
		}
		fill(&entities[i], row)
		rows = append(rows, row)
	}
	return rows
}
