package games

// Two players share a room ID, join it, and each press ready
// Once both ready signals are in, the round starts and the question set is dealt
// Each question has four options; answers are echoed to the whole room as they arrive
// A 30-second countdown bounds the round; a single time-up event ends it

// Display formats:
// One question at a time with four option buttons
// A running list of who answered what, plus the countdown

// Implementation details:
// - Use websockets per room; events carry the room ID so one connection can drive any room
// - Identify players by cookie on first connection
// - Question sets come from an embedded bank, or a json file via flag

// How to play
// - Open the room URL (or scan its QR code), join, and press ready
// - When both players are ready the questions appear and the clock starts
// - Pick an option to answer; your latest pick per question wins
// - When time runs out, press ready again for another round
