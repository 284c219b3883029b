package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fieldaudit/internal/app"
	"fieldaudit/internal/audit"
	"fieldaudit/internal/config"
	"fieldaudit/internal/model"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Create", "Delete").
func newApp(cmd *cobra.Command, operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cmd.Context(), cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts for a passphrase without echoing it.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pw), nil
}

var rootCmd = &cobra.Command{
	Use:   "fieldaudit",
	Short: "Field assessment capture tool",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init USER_ID",
	Short: "Initialize configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(args[0], defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Acting user: %s\n", args[0])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Acting user: %s\n", cfg.ActingUser)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Store:       %s\n", cfg.Store.Type)
		fmt.Printf("Vault:       %s (%s)\n", cfg.Vault.Name, cfg.Vault.Type)
		fmt.Printf("Encryption:  %s\n", cfg.Encryption.Type)
		return nil
	},
}

// vault command
var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage the attachment vault",
}

var vaultInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Verify vault access",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "InitVault")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.InitVault(); err != nil {
			return fmt.Errorf("vault validation failed: %w", err)
		}
		fmt.Println("Vault is reachable and correctly configured.")
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "InitKeys")
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.InitKeys(pass); err != nil {
			return fmt.Errorf("initializing keys: %w", err)
		}
		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user profiles",
}

var userAddCmd = &cobra.Command{
	Use:   "add EMAIL",
	Short: "Register a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		role, _ := cmd.Flags().GetString("role")

		a, err := newApp(cmd, "AddUser")
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.AddUser(cmd.Context(), args[0], name, role)
		if err != nil {
			return err
		}
		fmt.Printf("User added: %s (%s, role=%s)\n", p.ID, p.Email, p.Role)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ListUsers")
		if err != nil {
			return err
		}
		defer a.Close()

		users, err := a.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("No users registered.")
			return nil
		}
		for _, u := range users {
			fmt.Printf("%s  %-8s  %s  %s\n", u.ID, u.Role, u.Email, u.DisplayName)
		}
		return nil
	},
}

var userRoleCmd = &cobra.Command{
	Use:   "role USER_ID ROLE",
	Short: "Change a user's role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "SetUserRole")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetUserRole(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Role of %s set to %s\n", args[0], args[1])
		return nil
	},
}

// create command
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an assessment record",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Create")
		if err != nil {
			return err
		}
		defer a.Close()

		in := audit.CreateInput{}
		in.AttachmentRef, _ = cmd.Flags().GetString("photo")
		in.OwnerID, _ = cmd.Flags().GetString("owner")
		in.Category, _ = cmd.Flags().GetString("category")
		in.Element, _ = cmd.Flags().GetString("element")
		in.Condition, _ = cmd.Flags().GetInt("condition")
		in.Priority, _ = cmd.Flags().GetInt("priority")
		in.Notes, _ = cmd.Flags().GetString("notes")
		if cmd.Flags().Changed("lat") {
			v, _ := cmd.Flags().GetFloat64("lat")
			in.Latitude = &v
		}
		if cmd.Flags().Changed("lon") {
			v, _ := cmd.Flags().GetFloat64("lon")
			in.Longitude = &v
		}

		rec, err := a.CreateRecord(cmd.Context(), in)
		if err != nil {
			return fmt.Errorf("creating record: %w", err)
		}

		fmt.Printf("Created record %s\n", rec.ID)
		fmt.Printf("Attachment: %s\n", rec.AttachmentRef)
		return nil
	},
}

// get command
var getCmd = &cobra.Command{
	Use:   "get RECORD_ID",
	Short: "Show one assessment record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Get")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.GetRecord(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("ID:         %s\n", rec.ID)
		fmt.Printf("Owner:      %s\n", rec.OwnerID)
		fmt.Printf("Category:   %s / %s\n", rec.Category, rec.Element)
		fmt.Printf("Condition:  %d  Priority: %d\n", rec.Condition, rec.Priority)
		if rec.Latitude != nil && rec.Longitude != nil {
			fmt.Printf("Location:   %f, %f\n", *rec.Latitude, *rec.Longitude)
		}
		fmt.Printf("Attachment: %s\n", rec.AttachmentRef)
		if rec.Notes != "" {
			fmt.Printf("Notes:      %s\n", rec.Notes)
		}
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List assessment records",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		a, err := newApp(cmd, "List")
		if err != nil {
			return err
		}
		defer a.Close()

		var records []*model.AssessmentRecord
		if all {
			records, err = a.ListAllRecords(cmd.Context())
		} else {
			records, err = a.ListRecords(cmd.Context())
		}
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No records found.")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s  %-12s  %s/%s  c%d p%d\n",
				r.ID, r.OwnerID, r.Category, r.Element, r.Condition, r.Priority)
		}
		return nil
	},
}

// update command
var updateCmd = &cobra.Command{
	Use:   "update RECORD_ID",
	Short: "Update an assessment record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Update")
		if err != nil {
			return err
		}
		defer a.Close()

		var patch audit.RecordPatch
		if cmd.Flags().Changed("category") {
			v, _ := cmd.Flags().GetString("category")
			patch.Category = &v
		}
		if cmd.Flags().Changed("element") {
			v, _ := cmd.Flags().GetString("element")
			patch.Element = &v
		}
		if cmd.Flags().Changed("condition") {
			v, _ := cmd.Flags().GetInt("condition")
			patch.Condition = &v
		}
		if cmd.Flags().Changed("priority") {
			v, _ := cmd.Flags().GetInt("priority")
			patch.Priority = &v
		}
		if cmd.Flags().Changed("notes") {
			v, _ := cmd.Flags().GetString("notes")
			patch.Notes = &v
		}
		if cmd.Flags().Changed("lat") {
			v, _ := cmd.Flags().GetFloat64("lat")
			patch.Latitude = &v
		}
		if cmd.Flags().Changed("lon") {
			v, _ := cmd.Flags().GetFloat64("lon")
			patch.Longitude = &v
		}

		if err := a.UpdateRecord(cmd.Context(), args[0], patch); err != nil {
			return err
		}
		fmt.Printf("Updated record %s\n", args[0])
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete RECORD_ID",
	Short: "Delete an assessment record and its attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Delete")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.DeleteRecord(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Deleted record %s (attachment: %s)\n", args[0], res.Attachment)
		return nil
	},
}

// clear command
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all records (own records, or --all for everyone's)",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		a, err := newApp(cmd, "Clear")
		if err != nil {
			return err
		}
		defer a.Close()

		var res audit.BulkDeleteResult
		if all {
			res, err = a.ClearAllRecords(cmd.Context())
		} else {
			res, err = a.ClearRecords(cmd.Context())
		}
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d record(s), %d failed\n", res.Deleted, res.Failed)
		return nil
	},
}

// usage command
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Estimate storage usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		system, _ := cmd.Flags().GetBool("system")
		owner, _ := cmd.Flags().GetString("owner")

		a, err := newApp(cmd, "Usage")
		if err != nil {
			return err
		}
		defer a.Close()

		if system {
			sys, err := a.SystemUsage(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Users:       %d\n", sys.TotalUsers)
			fmt.Printf("Documents:   %d\n", sys.TotalDocuments)
			fmt.Printf("Records:     %s\n", audit.FormatBytes(sys.RecordStoreSize))
			fmt.Printf("Attachments: %s\n", audit.FormatBytes(sys.BlobStoreSize))
			fmt.Printf("Total:       %s\n", audit.FormatBytes(sys.TotalSize))
			for _, u := range sys.Users {
				fmt.Printf("  %s  %-30s  %s\n", u.UserID, u.Email, audit.FormatBytes(u.Metrics.TotalSize))
			}
			return nil
		}

		m, err := a.Usage(cmd.Context(), owner)
		if err != nil {
			return err
		}
		fmt.Printf("Documents:   %d (%d records)\n", m.TotalDocuments, m.RecordCount)
		fmt.Printf("Records:     %s\n", audit.FormatBytes(m.RecordStoreSize))
		fmt.Printf("Attachments: %s (%d objects)\n", audit.FormatBytes(m.BlobStoreSize), m.AttachmentCount)
		fmt.Printf("Total:       %s\n", audit.FormatBytes(m.TotalSize))
		return nil
	},
}

// photo command
var photoCmd = &cobra.Command{
	Use:   "photo",
	Short: "Work with record attachments",
}

var photoFetchCmd = &cobra.Command{
	Use:   "fetch RECORD_ID",
	Short: "Download a record's attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = args[0] + ".jpg"
		}

		a, err := newApp(cmd, "FetchPhoto")
		if err != nil {
			return err
		}
		defer a.Close()

		var pass string
		if a.EncryptionConfigured() {
			pass, err = readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()

		if err := a.FetchAttachment(cmd.Context(), args[0], f, pass); err != nil {
			os.Remove(out)
			return err
		}
		fmt.Printf("Attachment written to %s\n", out)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// vault / keys / user subcommands
	vaultCmd.AddCommand(vaultInitCmd)
	keysCmd.AddCommand(keysInitCmd)
	userCmd.AddCommand(userAddCmd)
	userAddCmd.Flags().String("name", "", "Display name")
	userAddCmd.Flags().String("role", "staff", "Role (staff or admin)")
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userRoleCmd)

	// record commands
	createCmd.Flags().String("photo", "", "Attachment source (file path, file://, http(s)://, data:, or mem:// URI)")
	createCmd.Flags().String("owner", "", "Owner user id (defaults to acting user)")
	createCmd.Flags().String("category", "", "Asset category")
	createCmd.Flags().String("element", "", "Asset element")
	createCmd.Flags().Int("condition", 3, "Condition rating 1-5")
	createCmd.Flags().Int("priority", 3, "Priority rating 1-5")
	createCmd.Flags().String("notes", "", "Free-form notes")
	createCmd.Flags().Float64("lat", 0, "Latitude")
	createCmd.Flags().Float64("lon", 0, "Longitude")
	createCmd.MarkFlagRequired("photo")

	listCmd.Flags().Bool("all", false, "List every user's records (admin)")

	updateCmd.Flags().String("category", "", "Asset category")
	updateCmd.Flags().String("element", "", "Asset element")
	updateCmd.Flags().Int("condition", 0, "Condition rating 1-5")
	updateCmd.Flags().Int("priority", 0, "Priority rating 1-5")
	updateCmd.Flags().String("notes", "", "Free-form notes")
	updateCmd.Flags().Float64("lat", 0, "Latitude")
	updateCmd.Flags().Float64("lon", 0, "Longitude")

	clearCmd.Flags().Bool("all", false, "Delete every user's records (admin)")

	usageCmd.Flags().Bool("system", false, "System-wide usage across all users (admin)")
	usageCmd.Flags().String("owner", "", "Estimate for a specific owner id")

	photoCmd.AddCommand(photoFetchCmd)
	photoFetchCmd.Flags().String("out", "", "Output file (default RECORD_ID.jpg)")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(vaultCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(photoCmd)
}
