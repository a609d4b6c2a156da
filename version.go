package cropdetect

// Version is the current cropdetect release.
const Version = "1.0.0"
