package core

// assembleResult merges the written objects and every accumulated error
// into the response, decorating entries with icons and overwrite flags.
func (p *pipeline) assembleResult(acc resolution, written []created) *ImportResult {
	res := &ImportResult{
		SuccessCount: len(written),
		Success:      len(acc.errors) == 0,
	}

	for _, c := range written {
		entry := SuccessResult{
			Type:          c.source.Type,
			ID:            c.source.ID,
			Meta:          Meta{Title: c.object.Title(), Icon: p.registry.Icon(c.source.Type)},
			Overwrite:     acc.pending.Has(c.source),
			DestinationID: c.destinationID,
		}
		// A new id without a recorded origin is a fresh copy the caller did
		// not ask for explicitly.
		entry.CreateNewCopy = c.destinationID != "" && c.object.OriginID == "" && !p.opts.CreateNewCopies
		res.SuccessResults = append(res.SuccessResults, entry)
	}

	for _, e := range acc.errors {
		e.Meta.Icon = p.registry.Icon(e.Type)
		e.Overwrite = acc.pending.Has(e.Key())
		res.Errors = append(res.Errors, e)
	}
	return res
}
