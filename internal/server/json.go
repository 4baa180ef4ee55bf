package server

import (
	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/query"
)

// ModuleJSON is the wire form of dist.ModuleDetails.
type ModuleJSON struct {
	Name          string              `json:"name"`
	Doc           string              `json:"doc,omitempty"`
	License       string              `json:"license,omitempty"`
	Authors       []string            `json:"authors,omitempty"`
	Versions      []string            `json:"versions,omitempty"`
	Dependencies  []dist.Dependency   `json:"dependencies,omitempty"`
	ArtifactTypes []dist.ArtifactType `json:"artifact_types,omitempty"`
}

// SearchJSON is the response of the complete and search endpoints.
type SearchJSON struct {
	Results        []ModuleJSON `json:"results"`
	HasMore        bool         `json:"has_more"`
	NextPagingInfo []int64      `json:"next_paging_info,omitempty"`
}

type versionJSON struct {
	Version       string              `json:"version"`
	Doc           string              `json:"doc,omitempty"`
	License       string              `json:"license,omitempty"`
	Authors       []string            `json:"authors,omitempty"`
	Dependencies  []dist.Dependency   `json:"dependencies,omitempty"`
	ArtifactTypes []dist.ArtifactType `json:"artifact_types,omitempty"`
	Remote        bool                `json:"remote,omitempty"`
	Origin        string              `json:"origin,omitempty"`
}

func searchResponse(res *query.SearchResult) SearchJSON {
	out := SearchJSON{
		Results:        make([]ModuleJSON, 0, res.Len()),
		HasMore:        res.HasMoreResults(),
		NextPagingInfo: res.NextPagingInfo(),
	}
	for _, d := range res.Results() {
		out.Results = append(out.Results, ModuleJSON{
			Name:          d.Name,
			Doc:           d.Doc,
			License:       d.License,
			Authors:       d.Authors.Elements(),
			Versions:      d.Versions,
			Dependencies:  d.Dependencies,
			ArtifactTypes: d.ArtifactTypes,
		})
	}
	return out
}

func toVersionJSON(v dist.VersionDetails) versionJSON {
	return versionJSON{
		Version:       v.Version,
		Doc:           v.Doc,
		License:       v.License,
		Authors:       v.Authors.Elements(),
		Dependencies:  v.Dependencies,
		ArtifactTypes: v.ArtifactTypes,
		Remote:        v.Remote,
		Origin:        v.Origin,
	}
}
