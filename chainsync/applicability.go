package chainsync

// checkApplicable implements spec.md §4.2 "Applicability": a block is
// applicable when (a) its predecessor is applied, (b) all of its operation
// validation passes are stored, and (c) its metadata is present. passCount
// comes from the block header's ValidationPass field.
func checkApplicable(meta *BlockMeta, predMeta *BlockMeta, opsStorage OperationsStorage, blockHash BlockHash, passCount uint8) (bool, error) {
	if meta == nil {
		return false, nil
	}
	if predMeta == nil || !predMeta.Applied {
		return false, nil
	}
	for pass := int8(0); pass < int8(passCount); pass++ {
		has, err := opsStorage.Has(OperationKey{Block: blockHash, Pass: pass})
		if err != nil {
			return false, err
		}
		if !has {
			return false, nil
		}
	}
	return true, nil
}

// cascadeRescan implements the successor-rescan of spec.md §4.2
// "Applicability": "Applied successors are cascaded: on every
// BlockApplied event, scan successors of the new head and re-check each
// for applicability." It returns the hashes of successors that became
// applicable as a result, in the order scanned.
func cascadeRescan(metaStorage BlockMetaStorage, opsStorage OperationsStorage, headerOf func(BlockHash) (*BlockHeader, error), appliedBlock BlockHash) ([]BlockHash, error) {
	meta, err := metaStorage.Get(appliedBlock)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}

	var newlyApplicable []BlockHash
	for _, succ := range meta.Successors {
		succMeta, err := metaStorage.Get(succ)
		if err != nil {
			return nil, err
		}
		if succMeta == nil || succMeta.Applied {
			continue
		}
		header, err := headerOf(succ)
		if err != nil {
			return nil, err
		}
		if header == nil {
			continue
		}
		ok, err := checkApplicable(succMeta, meta, opsStorage, succ, header.ValidationPass)
		if err != nil {
			return nil, err
		}
		if ok {
			newlyApplicable = append(newlyApplicable, succ)
		}
	}
	return newlyApplicable, nil
}
