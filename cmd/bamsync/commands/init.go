package commands

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/netgrove/bamsync/internal/cli/prompt"
	"github.com/netgrove/bamsync/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file interactively",
	Long: `Walk through the connection settings and write a config file. The
password can be left out of the file and supplied through the
BAM_PASSWORD environment variable instead.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists; re-run with --force to overwrite", path)
	}

	cfg := config.GetDefaultConfig()

	serverURL, err := prompt.InputWithValidation("Server URL", func(s string) error {
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("enter a full URL, e.g. https://bam.example.com")
		}
		return nil
	})
	if err != nil {
		return abortedOr(err)
	}
	cfg.Server.URL = serverURL

	username, err := prompt.InputRequired("Username")
	if err != nil {
		return abortedOr(err)
	}
	cfg.Server.Username = username

	storePassword, err := prompt.Confirm("Store the password in the config file", false)
	if err != nil {
		return abortedOr(err)
	}
	if storePassword {
		password, err := prompt.Password("Password")
		if err != nil {
			return abortedOr(err)
		}
		cfg.Server.Password = password
	} else {
		fmt.Println("set BAM_PASSWORD in the environment before running apply")
	}

	verify, err := prompt.Confirm("Verify TLS certificates", true)
	if err != nil {
		return abortedOr(err)
	}
	cfg.Server.VerifySSL = verify

	if err := config.SaveConfig(cfg, path); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	fmt.Println("run \"bamsync self-test\" to verify the connection")
	return nil
}

func abortedOr(err error) error {
	if prompt.IsAborted(err) {
		return fmt.Errorf("aborted")
	}
	return err
}
