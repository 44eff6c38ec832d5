package model

// --- Образы ---

// ImageBuildRequest — параметры сборки образа.
// Контекст сборки — каталог на сервере (ContextPath) или удалённый
// git-репозиторий (RemoteURL), ровно одно из двух.
type ImageBuildRequest struct {
	ContextPath string
	RemoteURL   string
	Dockerfile  string
	Tag         string
	Quiet       bool
	NoCache     bool
	Pull        bool
	Remove      bool
	ForceRemove bool
	BuildArgs   map[string]*string
	Labels      map[string]string
	CacheFrom   []string
	Target      string
	NetworkMode string
	ShmSize     int64
	ExtraHosts  []string
	Platform    string
	Isolation   string
	Squash      bool
}

// ImageBuildResult — результат сборки.
type ImageBuildResult struct {
	ID   string
	Tags []string
}

// ImageListRequest — фильтры списка образов.
type ImageListRequest struct {
	// Name — фильтр reference (repo или repo:tag)
	Name    string
	All     bool
	Filters map[string][]string
}

// ImageSummary — краткое описание образа.
type ImageSummary struct {
	ID   string
	Tags []string
	Size int64
}

// RegistryCredentials — учётные данные реестра образов.
type RegistryCredentials struct {
	Username string
	Password string
	// ServerAddress — адрес реестра, пусто — Docker Hub
	ServerAddress string
}

// --- Контейнеры ---

// RestartPolicy — политика перезапуска контейнера.
type RestartPolicy struct {
	Name              string
	MaximumRetryCount int
}

// ContainerRunRequest — параметры запуска контейнера (create + start).
// Размеры памяти задаются строками вида "512m" или числом байт.
type ContainerRunRequest struct {
	Image      string
	Command    []string
	Name       string
	Env        []string
	Labels     map[string]string
	WorkingDir string
	User       string
	Tty        bool
	StdinOpen  bool
	StopSignal string
	Platform   string

	AutoRemove      bool
	Privileged      bool
	PublishAllPorts bool
	ReadOnly        bool
	NetworkMode     string
	NetworkDisabled bool
	MacAddress      string
	// Ports — "8080/tcp" -> "8080" или "127.0.0.1:8080"
	Ports       map[string]string
	Volumes     []string
	VolumesFrom []string
	Tmpfs       map[string]string
	Sysctls     map[string]string
	StorageOpt  map[string]string
	SecurityOpt []string

	MemLimit       string
	MemReservation string
	MemSwap        string
	MemSwappiness  *int64
	ShmSize        string
	NanoCPUs       int64
	PidsLimit      *int64
	OomKillDisable bool
	OomScoreAdj    int
	PidMode        string
	UsernsMode     string
	UTSMode        string
	Runtime        string
	VolumeDriver   string
	RestartPolicy  *RestartPolicy
}

// ContainerRunResult — результат запуска контейнера.
type ContainerRunResult struct {
	ID     string
	Name   string
	Status string
}

// ContainerListRequest — параметры списка контейнеров.
type ContainerListRequest struct {
	All     bool
	Limit   int
	Since   string
	Before  string
	Filters map[string][]string
}

// ContainerSummary — краткое описание контейнера.
type ContainerSummary struct {
	ID     string
	Name   string
	Image  string
	State  string
	Status string
}

// ContainerLogsRequest — параметры чтения логов контейнера.
type ContainerLogsRequest struct {
	Stdout     bool
	Stderr     bool
	Timestamps bool
	// Tail — число последних строк или "all"
	Tail  string
	Since string
	Until string
}

// ContainerRemoveRequest — параметры удаления контейнера.
type ContainerRemoveRequest struct {
	RemoveVolumes bool
	RemoveLinks   bool
	Force         bool
}

// --- Тома ---

// VolumeCreateRequest — параметры создания тома.
type VolumeCreateRequest struct {
	Name       string
	Driver     string
	DriverOpts map[string]string
	Labels     map[string]string
}

// Volume — созданный том.
type Volume struct {
	Name       string
	Driver     string
	Mountpoint string
	Labels     map[string]string
	CreatedAt  string
}
