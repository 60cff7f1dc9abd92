package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"designcore/internal/core"
	"designcore/pkg/domain"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "designctl",
		Short:         "Compose, search and version genetic designs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}
	owner := a.owner
	if owner == "" {
		owner = os.Getenv("DESIGNCORE_OWNER")
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&a.owner, "owner", owner, "owner id the command acts as")
	flags.StringVar(&a.metricsMode, "metrics", metricsExpvar, "metrics recorder: none, expvar or prometheus")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write prometheus metrics to this file on exit")
	flags.StringVar(&a.traceFile, "trace-file", "", "append JSON span records to this file")

	root.AddCommand(
		newComposeCmd(a),
		newSearchCmd(a),
		newResolveCmd(a),
		newHistoryCmd(a),
		newReviseCmd(a),
		newCreateCmd(a),
		newDeleteCmd(a),
		newRestoreCmd(a),
		newPurgeCmd(a),
		newRolesCmd(a),
		newExportCmd(a),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newComposeCmd(a *app) *cobra.Command {
	var opts core.ComposeOptions
	cmd := &cobra.Command{
		Use:   "compose <design-id>...",
		Short: "Print fully populated design trees",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trees, err := a.svc.Compose(cmd.Context(), args, opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), trees)
		},
	}
	cmd.Flags().BoolVar(&opts.ResolveLatest, "latest", false, "compose the current revision of each id")
	cmd.Flags().StringVar(&opts.Filter.Name, "name", "", "keep designs whose name contains this text")
	cmd.Flags().StringVar(&opts.Filter.DisplayID, "display-id", "", "keep designs whose display id contains this text")
	return cmd
}

// parseKeyValues splits "k=v,k=v" into a map with lower-cased keys.
func parseKeyValues(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, domain.InvalidArgumentf("expected key=value, got %q", pair)
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out, nil
}

func parseParameterFilter(raw string) (core.ParameterFilter, error) {
	kv, err := parseKeyValues(raw)
	if err != nil {
		return core.ParameterFilter{}, err
	}
	f := core.ParameterFilter{Name: kv["name"], Variable: kv["variable"], Units: kv["units"]}
	if v, ok := kv["value"]; ok {
		f.Value = v
	}
	return f, nil
}

func parseParameterSpec(raw string) (core.ParameterSpec, error) {
	kv, err := parseKeyValues(raw)
	if err != nil {
		return core.ParameterSpec{}, err
	}
	value, err := strconv.ParseFloat(kv["value"], 64)
	if err != nil {
		return core.ParameterSpec{}, domain.InvalidArgumentf("parameter %q: value %q is not numeric", raw, kv["value"])
	}
	return core.ParameterSpec{Name: kv["name"], Variable: kv["variable"], Units: kv["units"], Value: value}, nil
}

func parseParameterSpecs(raws []string) ([]core.ParameterSpec, error) {
	out := make([]core.ParameterSpec, 0, len(raws))
	for _, raw := range raws {
		p, err := parseParameterSpec(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		criteria core.Criteria
		params   []string
		compose  bool
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find active designs matching every given criterion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, raw := range params {
				f, err := parseParameterFilter(raw)
				if err != nil {
					return err
				}
				criteria.Parameters = append(criteria.Parameters, f)
			}
			if compose {
				trees, err := a.svc.SearchDesigns(cmd.Context(), a.actor(), criteria, core.ComposeOptions{})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), trees)
			}
			ids, err := a.svc.Search(cmd.Context(), a.actor(), criteria)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ids)
		},
	}
	f := cmd.Flags()
	f.StringVar(&criteria.Name, "name", "", "design name contains this text")
	f.StringVar(&criteria.DisplayID, "display-id", "", "display id contains this text")
	f.StringVar(&criteria.Role, "role", "", "design has a module with this role")
	f.StringVar(&criteria.Sequence, "sequence", "", "design has a sequence equal to this one, ignoring case")
	f.StringArrayVar(&params, "param", nil, "parameter filter name=..,variable=..,units=..,value=.. (repeatable)")
	f.BoolVar(&criteria.ScopeToOwner, "mine", false, "only designs owned by --owner")
	f.BoolVar(&compose, "compose", false, "print composed trees instead of ids")
	return cmd
}

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id>",
		Short: "Print the current revision of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.svc.ResolveCurrent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Print the version chain a document belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := a.svc.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), chain)
		},
	}
}

func decodeAs[T domain.Revisable](raw []byte) (domain.Revisable, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, domain.InvalidArgumentf("decode %s: %v", v.EntityType(), err)
	}
	return v, nil
}

var revisionDecoders = map[domain.EntityType]func([]byte) (domain.Revisable, error){
	domain.EntityDesign:     decodeAs[domain.BioDesign],
	domain.EntityPart:       decodeAs[domain.Part],
	domain.EntitySequence:   decodeAs[domain.Sequence],
	domain.EntityAnnotation: decodeAs[domain.Annotation],
	domain.EntityFeature:    decodeAs[domain.Feature],
	domain.EntityModule:     decodeAs[domain.Module],
	domain.EntityParameter:  decodeAs[domain.Parameter],
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func newReviseCmd(a *app) *cobra.Command {
	var from, file string
	cmd := &cobra.Command{
		Use:   "revise <collection>",
		Short: "Store a new revision of a document from a JSON payload",
		Long: "Reads the payload from --file (or stdin with \"-\") and links it after --from.\n" +
			"Without --from the payload starts a new version chain.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decode, ok := revisionDecoders[domain.EntityType(strings.ToLower(args[0]))]
			if !ok {
				return domain.InvalidArgumentf("collection %q is not versioned", args[0])
			}
			raw, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			payload, err := decode(raw)
			if err != nil {
				return err
			}
			id, err := a.svc.CreateRevision(cmd.Context(), a.actor(), from, payload)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]string{"id": id})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "id of the revision being replaced")
	cmd.Flags().StringVar(&file, "file", "-", "JSON payload path")
	return cmd
}

func newCreateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create parts, devices and modules",
	}
	cmd.AddCommand(newCreatePartCmd(a), newCreateDeviceCmd(a), newCreateModuleCmd(a))
	return cmd
}

func printID(cmd *cobra.Command, id string) error {
	return writeJSON(cmd.OutOrStdout(), map[string]string{"id": id})
}

func newCreatePartCmd(a *app) *cobra.Command {
	var (
		spec   core.PartSpec
		params []string
	)
	cmd := &cobra.Command{
		Use:   "part",
		Short: "Create a basic part",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if spec.Parameters, err = parseParameterSpecs(params); err != nil {
				return err
			}
			id, err := a.svc.CreatePart(cmd.Context(), a.actor(), spec)
			if err != nil {
				return err
			}
			return printID(cmd, id)
		},
	}
	f := cmd.Flags()
	f.StringVar(&spec.Name, "name", "", "part name")
	f.StringVar(&spec.DisplayID, "display-id", "", "display id")
	f.StringVar(&spec.Description, "description", "", "description")
	f.StringVar(&spec.Sequence, "sequence", "", "nucleotide sequence")
	f.StringVar(&spec.Role, "role", "", "feature role annotating the whole sequence")
	f.StringArrayVar(&params, "param", nil, "parameter name=..,variable=..,units=..,value=.. (repeatable)")
	return cmd
}

func newCreateDeviceCmd(a *app) *cobra.Command {
	var (
		spec   core.DeviceSpec
		params []string
	)
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Create a device assembled from existing designs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if spec.Parameters, err = parseParameterSpecs(params); err != nil {
				return err
			}
			id, err := a.svc.CreateDevice(cmd.Context(), a.actor(), spec)
			if err != nil {
				return err
			}
			return printID(cmd, id)
		},
	}
	f := cmd.Flags()
	f.StringVar(&spec.Name, "name", "", "device name")
	f.StringVar(&spec.DisplayID, "display-id", "", "display id")
	f.StringVar(&spec.Description, "description", "", "description")
	f.StringSliceVar(&spec.SubDesignIDs, "sub", nil, "sub-design ids in assembly order")
	f.StringVar(&spec.Sequence, "sequence", "", "nucleotide sequence of the assembled device")
	f.StringVar(&spec.Role, "role", "", "feature role annotating the whole sequence")
	f.StringArrayVar(&params, "param", nil, "parameter name=..,variable=..,units=..,value=.. (repeatable)")
	return cmd
}

func newCreateModuleCmd(a *app) *cobra.Command {
	var m domain.Module
	cmd := &cobra.Command{
		Use:   "module",
		Short: "Attach a functional module to a design",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.svc.CreateModule(cmd.Context(), a.actor(), m)
			if err != nil {
				return err
			}
			return printID(cmd, id)
		},
	}
	cmd.Flags().StringVar(&m.Name, "name", "", "module name")
	cmd.Flags().StringVar(&m.DesignID, "design", "", "owning design id")
	cmd.Flags().StringVar(&m.Role, "role", "", "module role")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Soft delete a document and everything it owns",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := domain.EntityType(strings.ToLower(args[0]))
			if err := a.svc.SoftDelete(cmd.Context(), a.actor(), kind, args[1]); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]string{"deleted": args[1], "collection": string(kind)})
		},
	}
}

// lifecycleCmd builds restore and purge, which share their filter flags.
func lifecycleCmd(use, short string, run func(cmd *cobra.Command, f core.RestoreFilter) (int, error)) *cobra.Command {
	var f core.RestoreFilter
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := run(cmd, f)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]int{"count": n})
		},
	}
	cmd.Flags().StringSliceVar(&f.IDs, "id", nil, "deleted document ids")
	cmd.Flags().StringVar(&f.OwnerID, "owned-by", "", "select every deleted document of this owner")
	return cmd
}

func newRestoreCmd(a *app) *cobra.Command {
	return lifecycleCmd("restore", "Reactivate soft-deleted documents", func(cmd *cobra.Command, f core.RestoreFilter) (int, error) {
		return a.svc.Restore(cmd.Context(), a.actor(), f)
	})
}

func newPurgeCmd(a *app) *cobra.Command {
	return lifecycleCmd("purge", "Permanently remove soft-deleted documents", func(cmd *cobra.Command, f core.RestoreFilter) (int, error) {
		return a.svc.Purge(cmd.Context(), f)
	})
}

func newRolesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage the role vocabulary",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List active roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			roles, err := a.svc.ListRoles(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), roles)
		},
	}
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Insert the built-in roles that are missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.svc.SeedDefaultRoles(cmd.Context(), a.actor())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]int{"inserted": n})
		},
	}
	var types []string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			usages := make([]domain.RoleType, len(types))
			for i, t := range types {
				usages[i] = domain.RoleType(strings.ToUpper(t))
			}
			role, err := a.svc.CreateRole(cmd.Context(), a.actor(), args[0], usages...)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), role)
		},
	}
	create.Flags().StringSliceVar(&types, "type", nil, "usages the role is valid for: MODULE, FEATURE")
	cmd.AddCommand(list, seed, create)
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <design-id>...",
		Short: "Write composed designs to the configured blob store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := a.svc.ExportDesigns(cmd.Context(), a.actor(), args)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), infos)
		},
	}
}
