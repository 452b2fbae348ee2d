package repository

// Config represents the desired state of one local mirror
type Config struct {
	// Remote is the desired remote url of the mirror, including any
	// injected credentials. this exact string is stored as the
	// mirror's remote.origin.url
	Remote string

	// Name of the repository, the mirror directory is <Name>.git under
	// Root. if empty the name is taken from the remote url path
	Name string

	// Root is the absolute path to the dir under which the mirror
	// directory is created
	Root string
}
