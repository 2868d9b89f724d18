package config

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/scholara/internal/invoicearchive/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const policyKey = "archiving"

var defaultPolicyPaths = []string{
	"/var/lib/scholara/config", // volume-mounted config
	"/etc/scholara",
	".",
}

// PolicyHolder serves the current archiving policy and swaps it on file change.
type PolicyHolder struct {
	current atomic.Value // holds domain.Policy
}

func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	return newPolicyHolder(log, defaultPolicyPaths...)
}

func newPolicyHolder(log *zap.Logger, paths ...string) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.archiving")

	v := viper.New()
	v.SetConfigName("archiving")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	// SCHOLARA_ARCHIVING_BATCH_SIZE overrides archiving.batch_size.
	v.SetEnvPrefix("SCHOLARA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setPolicyDefaults(v, domain.DefaultPolicy())

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	policy, err := readPolicy(v)
	if err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := readPolicy(v)
			if err != nil {
				log.Warn("archiving policy reload ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("archiving policy reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

// NewStaticPolicyHolder pins a policy, for tests and one-off tooling.
func NewStaticPolicyHolder(policy domain.Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *PolicyHolder) Get() domain.Policy {
	return h.current.Load().(domain.Policy)
}

func setPolicyDefaults(v *viper.Viper, p domain.Policy) {
	v.SetDefault(policyKey+".archive_after_months", p.ArchiveAfterMonths)
	v.SetDefault(policyKey+".compress_after_months", p.CompressAfterMonths)
	v.SetDefault(policyKey+".delete_after_years", p.DeleteAfterYears)
	v.SetDefault(policyKey+".batch_size", p.BatchSize)
	v.SetDefault(policyKey+".enable_compression", p.EnableCompression)
	v.SetDefault(policyKey+".enable_partitioning", p.EnablePartitioning)
}

// readPolicy reads key by key so SCHOLARA_* variables override nested file values.
func readPolicy(v *viper.Viper) (domain.Policy, error) {
	policy := domain.Policy{
		ArchiveAfterMonths:  v.GetInt(policyKey + ".archive_after_months"),
		CompressAfterMonths: v.GetInt(policyKey + ".compress_after_months"),
		DeleteAfterYears:    v.GetInt(policyKey + ".delete_after_years"),
		BatchSize:           v.GetInt(policyKey + ".batch_size"),
		EnableCompression:   v.GetBool(policyKey + ".enable_compression"),
		EnablePartitioning:  v.GetBool(policyKey + ".enable_partitioning"),
	}
	if err := policy.Validate(); err != nil {
		return domain.Policy{}, fmt.Errorf("%s: %w", policyKey, err)
	}
	return policy, nil
}
