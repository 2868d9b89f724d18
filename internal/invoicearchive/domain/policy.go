package domain

// Policy controls when partitions age into each lifecycle stage.
type Policy struct {
	ArchiveAfterMonths  int  `json:"archive_after_months" mapstructure:"archive_after_months"`
	CompressAfterMonths int  `json:"compress_after_months" mapstructure:"compress_after_months"`
	DeleteAfterYears    int  `json:"delete_after_years" mapstructure:"delete_after_years"`
	BatchSize           int  `json:"batch_size" mapstructure:"batch_size"`
	EnableCompression   bool `json:"enable_compression" mapstructure:"enable_compression"`
	EnablePartitioning  bool `json:"enable_partitioning" mapstructure:"enable_partitioning"`
}

// PolicyOverride is a partial policy; nil fields keep the base value.
type PolicyOverride struct {
	ArchiveAfterMonths  *int  `json:"archive_after_months,omitempty"`
	CompressAfterMonths *int  `json:"compress_after_months,omitempty"`
	DeleteAfterYears    *int  `json:"delete_after_years,omitempty"`
	BatchSize           *int  `json:"batch_size,omitempty"`
	EnableCompression   *bool `json:"enable_compression,omitempty"`
	EnablePartitioning  *bool `json:"enable_partitioning,omitempty"`
}

func DefaultPolicy() Policy {
	return Policy{
		ArchiveAfterMonths:  12,
		CompressAfterMonths: 24,
		DeleteAfterYears:    7,
		BatchSize:           1000,
		EnableCompression:   true,
		EnablePartitioning:  true,
	}
}

// Merge applies the non-nil override fields over p.
func (p Policy) Merge(o *PolicyOverride) Policy {
	if o == nil {
		return p
	}
	if o.ArchiveAfterMonths != nil {
		p.ArchiveAfterMonths = *o.ArchiveAfterMonths
	}
	if o.CompressAfterMonths != nil {
		p.CompressAfterMonths = *o.CompressAfterMonths
	}
	if o.DeleteAfterYears != nil {
		p.DeleteAfterYears = *o.DeleteAfterYears
	}
	if o.BatchSize != nil {
		p.BatchSize = *o.BatchSize
	}
	if o.EnableCompression != nil {
		p.EnableCompression = *o.EnableCompression
	}
	if o.EnablePartitioning != nil {
		p.EnablePartitioning = *o.EnablePartitioning
	}
	return p
}

func (p Policy) Validate() error {
	if p.ArchiveAfterMonths <= 0 || p.CompressAfterMonths <= 0 || p.DeleteAfterYears <= 0 {
		return ErrInvalidPolicy
	}
	if p.CompressAfterMonths < p.ArchiveAfterMonths {
		return ErrInvalidPolicy
	}
	if p.BatchSize <= 0 {
		return ErrInvalidPolicy
	}
	return nil
}
