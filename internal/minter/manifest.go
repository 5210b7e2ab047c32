package minter

import "fmt"

// Asset file names referenced by the manifest before upload
const (
	ImageFileName       = "image.png"
	CertificateFileName = "certificate.png"
	ManifestFileName    = "metadata.json"
	pngContentType      = "image/png"
	jsonContentType     = "application/json"
)

// Collection describes the collection every minted item belongs to
type Collection struct {
	Symbol               string
	Name                 string
	Family               string
	CreatorAddress       string
	SellerFeeBasisPoints uint16
}

// Manifest is the off-chain metadata of a minted item
type Manifest struct {
	Name                 string              `json:"name"`
	Symbol               string              `json:"symbol"`
	Description          string              `json:"description,omitempty"`
	SellerFeeBasisPoints uint16              `json:"seller_fee_basis_points"`
	Image                string              `json:"image,omitempty"`
	Certificate          string              `json:"certificate,omitempty"`
	Collection           *ManifestCollection `json:"collection,omitempty"`
	Properties           ManifestProperties  `json:"properties"`
}

// ManifestCollection names the collection in the manifest
type ManifestCollection struct {
	Name   string `json:"name"`
	Family string `json:"family"`
}

// ManifestProperties lists creators and files
type ManifestProperties struct {
	Creators []Creator      `json:"creators,omitempty"`
	Files    []ManifestFile `json:"files,omitempty"`
}

// Creator is a royalty recipient
type Creator struct {
	Address  string `json:"address"`
	Share    uint8  `json:"share"`
	Verified bool   `json:"verified"`
}

// ManifestFile is one file attached to the item
type ManifestFile struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// NewManifest builds the manifest of the item minted into slot
func NewManifest(c Collection, name string, slot uint32, withCertificate bool) Manifest {
	m := Manifest{
		Name:                 fmt.Sprintf("%s (#%d)", name, slot),
		Symbol:               c.Symbol,
		Description:          fmt.Sprintf("%s #%d", c.Family, slot),
		SellerFeeBasisPoints: c.SellerFeeBasisPoints,
		Image:                ImageFileName,
		Collection: &ManifestCollection{
			Name:   c.Name,
			Family: c.Family,
		},
		Properties: ManifestProperties{
			Creators: []Creator{{Address: c.CreatorAddress, Share: 100, Verified: true}},
			Files:    []ManifestFile{{URI: ImageFileName, Type: pngContentType}},
		},
	}

	if withCertificate {
		m.Certificate = CertificateFileName
		m.Properties.Files = append(m.Properties.Files, ManifestFile{
			URI:  CertificateFileName,
			Type: pngContentType,
			Name: "certificate",
		})
	}

	return m
}

// withLinks returns a copy of the manifest pointing at the uploaded files
func (m Manifest) withLinks(imageLink, certificateLink string) Manifest {
	out := m
	out.Image = imageLink
	if m.Certificate != "" {
		out.Certificate = certificateLink
	}

	out.Properties.Files = make([]ManifestFile, len(m.Properties.Files))
	for i, f := range m.Properties.Files {
		switch f.URI {
		case ImageFileName:
			f.URI = imageLink
		case CertificateFileName:
			f.URI = certificateLink
		}
		out.Properties.Files[i] = f
	}

	return out
}
