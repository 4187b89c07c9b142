package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.keploy.io/testengine/config"
	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/pkg/service/mockdata"
	"go.keploy.io/testengine/utils"
	"go.uber.org/zap"
)

func init() {
	Register("mock", Mock)
}

func Mock(ctx context.Context, logger *zap.Logger, cfg *config.Config, serviceFactory ServiceFactory, cmdConfigurator CmdConfigurator) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "mock",
		Short: "generate, import, export and manage mock data sets",
	}
	validate := func(cmd *cobra.Command, _ []string) error {
		return cmdConfigurator.Validate(ctx, cmd)
	}

	var generateCmd = &cobra.Command{
		Use:     "generate",
		Short:   "generate a mock data set from a template",
		Example: `testengine mock generate --template cv-basic --count 3 --seed 7 --field contact.email=ada@example.com`,
		PreRunE: validate,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := mockService(ctx, serviceFactory)
			if err != nil {
				utils.LogError(logger, err, "failed to get service")
				return err
			}
			opts, err := generateOptions(cmd, cfg)
			if err != nil {
				return err
			}
			ds, err := svc.GenerateData(ctx, opts)
			if err != nil {
				utils.LogError(logger, err, "failed to generate mock data")
				return err
			}
			return printJSON(cmd, ds)
		},
	}

	var exportCmd = &cobra.Command{
		Use:     "export <id>",
		Short:   "export a mock data set as json, csv, yaml or xml",
		Example: `testengine mock export 6f1c... --format csv -o users.csv`,
		Args:    cobra.ExactArgs(1),
		PreRunE: validate,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := mockService(ctx, serviceFactory)
			if err != nil {
				utils.LogError(logger, err, "failed to get service")
				return err
			}
			formatName, _ := cmd.Flags().GetString("format")
			format, err := mockdata.ParseFormat(formatName)
			if err != nil {
				return err
			}
			withMetadata, _ := cmd.Flags().GetBool("metadata")
			data, err := svc.Export(ctx, args[0], format, mockdata.ExportOptions{IncludeMetadata: withMetadata})
			if err != nil {
				utils.LogError(logger, err, "failed to export the mock data set", zap.String("id", args[0]))
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			return writeOutput(cmd.OutOrStdout(), out, data)
		},
	}

	var importCmd = &cobra.Command{
		Use:     "import <file>",
		Short:   "import a mock data set from a json, csv, yaml or xml file",
		Example: `testengine mock import users.csv --type user-profile --name users`,
		Args:    cobra.ExactArgs(1),
		PreRunE: validate,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := mockService(ctx, serviceFactory)
			if err != nil {
				utils.LogError(logger, err, "failed to get service")
				return err
			}
			formatName, _ := cmd.Flags().GetString("format")
			if formatName == "" {
				formatName = strings.TrimPrefix(filepath.Ext(args[0]), ".")
				if formatName == "yml" {
					formatName = string(mockdata.FormatYAML)
				}
			}
			format, err := mockdata.ParseFormat(formatName)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				utils.LogError(logger, err, "failed to read the import file", zap.String("file", args[0]))
				return err
			}
			opts := mockdata.ImportOptions{}
			opts.Name, _ = cmd.Flags().GetString("name")
			typ, _ := cmd.Flags().GetString("type")
			opts.Type = models.DataSetType(typ)
			opts.Category, _ = cmd.Flags().GetString("category")
			opts.Description, _ = cmd.Flags().GetString("description")
			opts.Tags, _ = cmd.Flags().GetStringSlice("tags")
			opts.TTL, _ = cmd.Flags().GetDuration("ttl")
			ds, err := svc.Import(ctx, data, format, opts)
			if err != nil {
				utils.LogError(logger, err, "failed to import the mock data set", zap.String("file", args[0]))
				return err
			}
			return printJSON(cmd, ds)
		},
	}

	var listCmd = &cobra.Command{
		Use:     "list",
		Short:   "list stored mock data sets",
		PreRunE: validate,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := mockService(ctx, serviceFactory)
			if err != nil {
				utils.LogError(logger, err, "failed to get service")
				return err
			}
			filter := mockdata.Filter{}
			typ, _ := cmd.Flags().GetString("type")
			filter.Type = models.DataSetType(typ)
			filter.Category, _ = cmd.Flags().GetString("category")
			filter.Tags, _ = cmd.Flags().GetStringSlice("tags")
			if cmd.Flags().Changed("expired") {
				expired, _ := cmd.Flags().GetBool("expired")
				filter.Expired = &expired
			}
			sets, err := svc.ListDataSets(ctx, filter)
			if err != nil {
				utils.LogError(logger, err, "failed to list mock data sets")
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("ID", "Name", "Type", "Category", "Size", "Expires")
			for _, ds := range sets {
				expires := "never"
				if ds.ExpiresAt != nil {
					expires = ds.ExpiresAt.Format(time.RFC3339)
				}
				if err := table.Append([]string{ds.ID, ds.Name, string(ds.Type), ds.Category, strconv.FormatInt(ds.Size, 10), expires}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}

	var purgeCmd = &cobra.Command{
		Use:     "purge",
		Short:   "delete every expired mock data set",
		PreRunE: validate,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := mockService(ctx, serviceFactory)
			if err != nil {
				utils.LogError(logger, err, "failed to get service")
				return err
			}
			n, err := svc.PurgeExpired(ctx)
			if err != nil {
				utils.LogError(logger, err, "failed to purge expired mock data sets")
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired data set(s)\n", n)
			return nil
		},
	}

	subs := []*cobra.Command{generateCmd, exportCmd, importCmd, listCmd, purgeCmd}
	cmd.AddCommand(subs...)
	if err := cmdConfigurator.AddFlags(cmd); err != nil {
		utils.LogError(logger, err, "failed to add mock flags")
		return nil
	}
	for _, c := range subs {
		if err := cmdConfigurator.AddFlags(c); err != nil {
			utils.LogError(logger, err, "failed to add mock flags")
			return nil
		}
	}
	return cmd
}

func generateOptions(cmd *cobra.Command, cfg *config.Config) (mockdata.GenerateOptions, error) {
	opts := mockdata.GenerateOptions{
		Seed:   cfg.MockData.Seed,
		Locale: cfg.MockData.Locale,
		TTL:    cfg.MockData.DefaultTTL,
	}
	opts.TemplateID, _ = cmd.Flags().GetString("template")
	typ, _ := cmd.Flags().GetString("type")
	opts.Type = models.DataSetType(typ)
	opts.Category, _ = cmd.Flags().GetString("category")
	opts.Name, _ = cmd.Flags().GetString("name")
	opts.Count, _ = cmd.Flags().GetInt("count")
	opts.Tags, _ = cmd.Flags().GetStringSlice("tags")
	if cmd.Flags().Changed("ttl") {
		opts.TTL, _ = cmd.Flags().GetDuration("ttl")
	}
	fields, _ := cmd.Flags().GetStringToString("field")
	if len(fields) > 0 {
		opts.CustomFields = make(map[string]any, len(fields))
		for k, v := range fields {
			var parsed any
			if err := json.Unmarshal([]byte(v), &parsed); err != nil {
				parsed = v
			}
			opts.CustomFields[k] = parsed
		}
	}
	if opts.TemplateID == "" && opts.Type == "" {
		return opts, errors.New("either --template or --type is required")
	}
	return opts, nil
}

func mockService(ctx context.Context, serviceFactory ServiceFactory) (mockdata.Service, error) {
	svc, err := serviceFactory.GetService(ctx, "mock")
	if err != nil {
		return nil, err
	}
	mock, ok := svc.(mockdata.Service)
	if !ok {
		return nil, errors.New("service doesn't satisfy the mock data service interface")
	}
	return mock, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return err
}
