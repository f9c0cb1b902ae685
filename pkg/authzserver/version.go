package authzserver

const Version = "0.1.0"
