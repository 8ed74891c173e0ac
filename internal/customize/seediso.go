package customize

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/kdomanski/iso9660"
	"gopkg.in/yaml.v3"
)

// SeedISO applies a spec by generating a cloud-init NoCloud seed image
// next to the overlay disk. The domain descriptor attaches it as a
// read-only cdrom; cloud-init inside the guest does the actual work on
// first boot.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
type SeedISO struct{}

// NewSeedISO returns the cloud-init backed Tool.
func NewSeedISO() *SeedISO { return &SeedISO{} }

// userData is the cloud-config document, marshaled to YAML and
// prefixed with the "#cloud-config" header.
type userData struct {
	Hostname string      `yaml:"hostname"`
	FQDN     string      `yaml:"fqdn"`
	Timezone string      `yaml:"timezone,omitempty"`
	Locale   string      `yaml:"locale,omitempty"`
	Users    []userEntry `yaml:"users,omitempty"`
	Bootcmd  []string    `yaml:"bootcmd,omitempty"`
}

type userEntry struct {
	Name              string   `yaml:"name"`
	Groups            string   `yaml:"groups,omitempty"`
	Sudo              string   `yaml:"sudo,omitempty"`
	LockPasswd        bool     `yaml:"lock_passwd"`
	Passwd            string   `yaml:"passwd,omitempty"`
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys,omitempty"`
}

// metaData is the NoCloud instance metadata document.
type metaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// Apply writes the seed ISO to spec.SeedISOPath. The overlay disk
// itself is not modified.
func (s *SeedISO) Apply(_ context.Context, _ string, spec Spec) error {
	if spec.SeedISOPath == "" {
		return fmt.Errorf("seed ISO path is required for cloud-init customization")
	}

	iso, err := generateISO(spec)
	if err != nil {
		return err
	}

	if err := os.WriteFile(spec.SeedISOPath, iso, 0644); err != nil {
		return fmt.Errorf("failed to write seed ISO %s: %w", spec.SeedISOPath, err)
	}

	return nil
}

func generateUserData(spec Spec) (string, error) {
	ud := userData{
		Hostname: spec.Hostname,
		FQDN:     spec.FQDN,
		Timezone: spec.Timezone,
		Locale:   spec.Locale,
	}

	if spec.User.Name != "" {
		ud.Users = []userEntry{
			{
				Name:              spec.User.Name,
				Groups:            "wheel",
				Sudo:              "ALL=(ALL) NOPASSWD:ALL",
				LockPasswd:        spec.User.PasswordHash == "",
				Passwd:            spec.User.PasswordHash,
				SSHAuthorizedKeys: spec.User.SSHKeys,
			},
		}
	}

	for _, entry := range spec.HostsEntries {
		ud.Bootcmd = append(ud.Bootcmd,
			fmt.Sprintf("grep -q '%s %s' /etc/hosts || echo '%s %s %s' >> /etc/hosts",
				entry.IP, entry.FQDN, entry.IP, entry.FQDN, entry.Name))
	}

	data, err := yaml.Marshal(&ud)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data: %w", err)
	}

	return "#cloud-config\n" + string(data), nil
}

func generateMetaData(spec Spec) (string, error) {
	md := metaData{
		InstanceID:    spec.Hostname,
		LocalHostname: spec.Hostname,
	}

	data, err := yaml.Marshal(&md)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data: %w", err)
	}

	return string(data), nil
}

// generateISO packs user-data and meta-data into an ISO9660 image with
// the CIDATA volume label the NoCloud datasource requires.
func generateISO(spec Spec) ([]byte, error) {
	ud, err := generateUserData(spec)
	if err != nil {
		return nil, err
	}

	md, err := generateMetaData(spec)
	if err != nil {
		return nil, err
	}

	writer, err := iso9660.NewWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to create ISO writer: %w", err)
	}
	defer func() {
		_ = writer.Cleanup()
	}()

	if err := writer.AddFile(bytes.NewReader([]byte(ud)), "user-data"); err != nil {
		return nil, fmt.Errorf("failed to add user-data: %w", err)
	}
	if err := writer.AddFile(bytes.NewReader([]byte(md)), "meta-data"); err != nil {
		return nil, fmt.Errorf("failed to add meta-data: %w", err)
	}

	var buf bytes.Buffer
	if err := writer.WriteTo(&buf, "CIDATA"); err != nil {
		return nil, fmt.Errorf("failed to write ISO image: %w", err)
	}

	return buf.Bytes(), nil
}
