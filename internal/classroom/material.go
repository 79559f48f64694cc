package classroom

type MaterialKind int

const (
	MaterialDriveFile MaterialKind = iota + 1
	MaterialForm
	MaterialVideo
	MaterialLink
)

func (k MaterialKind) String() string {
	switch k {
	case MaterialDriveFile:
		return "drive_file"
	case MaterialForm:
		return "form"
	case MaterialVideo:
		return "youtube_video"
	case MaterialLink:
		return "link"
	default:
		return "unknown"
	}
}

// MaterialRef is the displayable part every material variant carries.
type MaterialRef struct {
	Title     string
	URL       string
	Thumbnail string
}

// Material is a closed sum type: DriveFile, Form, YouTubeVideo or Link.
type Material interface {
	Kind() MaterialKind
	Ref() MaterialRef
	material()
}

type DriveFile struct {
	ID        string
	ShareMode string
	MaterialRef
}

type Form struct {
	ResponseURL string
	MaterialRef
}

type YouTubeVideo struct {
	ID string
	MaterialRef
}

type Link struct {
	MaterialRef
}

func (DriveFile) Kind() MaterialKind    { return MaterialDriveFile }
func (Form) Kind() MaterialKind         { return MaterialForm }
func (YouTubeVideo) Kind() MaterialKind { return MaterialVideo }
func (Link) Kind() MaterialKind         { return MaterialLink }

func (m DriveFile) Ref() MaterialRef    { return m.MaterialRef }
func (m Form) Ref() MaterialRef         { return m.MaterialRef }
func (m YouTubeVideo) Ref() MaterialRef { return m.MaterialRef }
func (m Link) Ref() MaterialRef         { return m.MaterialRef }

func (DriveFile) material()    {}
func (Form) material()         {}
func (YouTubeVideo) material() {}
func (Link) material()         {}
