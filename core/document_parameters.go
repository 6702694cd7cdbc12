package core

import (
	"strconv"
	"strings"
)

// Parameters are the currency's genesis-block-only constants, carried as a
// single colon-joined `Parameters:` header field (§6).
type Parameters struct {
	C                float64 // UD growth coefficient
	DT               uint64  // UD period: seconds between two Universal Dividends (distinct from DtReeval)
	UD0              uint64  // initial UD amount
	SigPeriod        uint64  // min seconds between two certifications from the same issuer
	SigStock         uint64  // max live certifications a single issuer may emit
	SigWindow        uint64  // max age (seconds) of a pending certification
	SigValidity      uint64  // certification lifetime (seconds)
	SigQty           uint64  // min certification count required to become a member
	IdtyWindow       uint64  // max age (seconds) of a pending identity
	MsWindow         uint64  // max age (seconds) of a pending membership
	XPercent         float64 // WoT distance rule required fraction of referring members
	MsValidity       uint64  // membership lifetime (seconds)
	StepMax          uint64  // WoT distance rule max path length
	MedianTimeBlocks uint64  // window size for median time computation
	AvgGenTime       uint64  // target seconds between blocks
	DtDiffEval       uint64  // difficulty smoothing window (blocks)
	PercentRot       float64 // issuers frame personalized-difficulty rotation fraction
	UDTime0          uint64  // unix time of the first UD
	UDReevalTime0    uint64  // unix time of the first UD re-evaluation
	DtReeval         uint64  // seconds between UD re-evaluations
}

func (p Parameters) String() string {
	fields := []string{
		formatFloat(p.C), formatUint(p.DT), formatUint(p.UD0), formatUint(p.SigPeriod),
		formatUint(p.SigStock), formatUint(p.SigWindow), formatUint(p.SigValidity), formatUint(p.SigQty),
		formatUint(p.IdtyWindow), formatUint(p.MsWindow), formatFloat(p.XPercent), formatUint(p.MsValidity),
		formatUint(p.StepMax), formatUint(p.MedianTimeBlocks), formatUint(p.AvgGenTime), formatUint(p.DtDiffEval),
		formatFloat(p.PercentRot), formatUint(p.UDTime0), formatUint(p.UDReevalTime0), formatUint(p.DtReeval),
	}
	return strings.Join(fields, ":")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseParameters parses the colon-joined Parameters field value.
func ParseParameters(s string) (*Parameters, error) {
	const kind = "Block.Parameters"
	parts := strings.Split(s, ":")
	if len(parts) != 20 {
		return nil, newParseError(kind, "expected 20 fields, got %d", len(parts))
	}
	pf := func(i int) (float64, error) {
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return 0, newParseError(kind, "field %d: %v", i, err)
		}
		return v, nil
	}
	pu := func(i int) (uint64, error) {
		v, err := strconv.ParseUint(parts[i], 10, 64)
		if err != nil {
			return 0, newParseError(kind, "field %d: %v", i, err)
		}
		return v, nil
	}
	var p Parameters
	var err error
	if p.C, err = pf(0); err != nil {
		return nil, err
	}
	if p.DT, err = pu(1); err != nil {
		return nil, err
	}
	if p.UD0, err = pu(2); err != nil {
		return nil, err
	}
	if p.SigPeriod, err = pu(3); err != nil {
		return nil, err
	}
	if p.SigStock, err = pu(4); err != nil {
		return nil, err
	}
	if p.SigWindow, err = pu(5); err != nil {
		return nil, err
	}
	if p.SigValidity, err = pu(6); err != nil {
		return nil, err
	}
	if p.SigQty, err = pu(7); err != nil {
		return nil, err
	}
	if p.IdtyWindow, err = pu(8); err != nil {
		return nil, err
	}
	if p.MsWindow, err = pu(9); err != nil {
		return nil, err
	}
	if p.XPercent, err = pf(10); err != nil {
		return nil, err
	}
	if p.MsValidity, err = pu(11); err != nil {
		return nil, err
	}
	if p.StepMax, err = pu(12); err != nil {
		return nil, err
	}
	if p.MedianTimeBlocks, err = pu(13); err != nil {
		return nil, err
	}
	if p.AvgGenTime, err = pu(14); err != nil {
		return nil, err
	}
	if p.DtDiffEval, err = pu(15); err != nil {
		return nil, err
	}
	if p.PercentRot, err = pf(16); err != nil {
		return nil, err
	}
	if p.UDTime0, err = pu(17); err != nil {
		return nil, err
	}
	if p.UDReevalTime0, err = pu(18); err != nil {
		return nil, err
	}
	if p.DtReeval, err = pu(19); err != nil {
		return nil, err
	}
	return &p, nil
}
